package mqtt

import "fmt"

// Topic constants for the fan control domain
const (
	// Climate context published per zone by the climate bridge (input)
	TopicClimateContext = "automation/context/climate/+"

	// Manual fan override events (input)
	TopicFanOverride = "automation/override/fan/+"

	// Fan command and context topics (output)
	TopicFanCommandBase  = "automation/command/fan"
	TopicFanContextBase  = "automation/context/fan"
	TopicFanLearningBase = "automation/context/fan-learning"
)

// ClimateContextTopic constructs the climate context topic for a zone
// Pattern: automation/context/climate/{zone}
func ClimateContextTopic(zone string) string {
	return fmt.Sprintf("automation/context/climate/%s", zone)
}

// FanCommandTopic constructs the fan command topic for a zone
// Pattern: automation/command/fan/{zone}
func FanCommandTopic(zone string) string {
	return fmt.Sprintf("%s/%s", TopicFanCommandBase, zone)
}

// FanContextTopic constructs the fan decision context topic for a zone
// Pattern: automation/context/fan/{zone}
func FanContextTopic(zone string) string {
	return fmt.Sprintf("%s/%s", TopicFanContextBase, zone)
}

// FanLearningTopic constructs the advisory learned-parameters topic for a zone
// Pattern: automation/context/fan-learning/{zone}
func FanLearningTopic(zone string) string {
	return fmt.Sprintf("%s/%s", TopicFanLearningBase, zone)
}
