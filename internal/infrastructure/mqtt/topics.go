package mqtt

import "fmt"

// Topic prefixes for the automationd MQTT hierarchy.
//
// Module topics use the flat scheme: automationd/module/{category}/{id}
// Program topics are addressed by PID: automationd/program/{address}/{category}
const (
	// TopicPrefixModule is the base for module-bus topics (module state and
	// commands, bridged in from whatever protocol gateway owns the module).
	TopicPrefixModule = "automationd/module"

	// TopicPrefixProgram is the base for program lifecycle and output topics.
	TopicPrefixProgram = "automationd/program"

	// TopicPrefixSystem is the base for hub-wide system topics.
	TopicPrefixSystem = "automationd/system"

	// TopicPrefixUI is the base for UI-specific topics.
	TopicPrefixUI = "automationd/ui"
)

// Topics provides builders for automationd MQTT topics. Using these helpers
// ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ModuleState("living-room-light")
//	// Returns: "automationd/module/state/living-room-light"
type Topics struct{}

// =============================================================================
// Module Topics
// =============================================================================

// ModuleState returns the topic a module (or the bridge fronting it)
// publishes its current parameter values to.
//
// Example: automationd/module/state/living-room-light
func (Topics) ModuleState(id string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefixModule, id)
}

// ModuleCommand returns the topic for commands directed at a module.
//
// Example: automationd/module/command/living-room-light
func (Topics) ModuleCommand(id string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixModule, id)
}

// AllModuleStates returns a pattern matching every module's state topic.
//
// Pattern: automationd/module/state/+
func (Topics) AllModuleStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefixModule)
}

// AllModuleCommands returns a pattern matching every module's command topic.
//
// Pattern: automationd/module/command/+
func (Topics) AllModuleCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefixModule)
}

// =============================================================================
// Program Topics
// =============================================================================

// ProgramStatus returns the topic a program publishes its lifecycle status
// (Idle/Running/Interrupted/Enabled/Disabled) to.
//
// Example: automationd/program/1042/status
func (Topics) ProgramStatus(address int) string {
	return fmt.Sprintf("%s/%d/status", TopicPrefixProgram, address)
}

// ProgramError returns the topic a program publishes its sanitized
// RuntimeError string to when a fault auto-disables it.
//
// Example: automationd/program/1042/error
func (Topics) ProgramError(address int) string {
	return fmt.Sprintf("%s/%d/error", TopicPrefixProgram, address)
}

// ProgramMirror returns the per-program mirror topic a RaiseEvent call
// publishes property to, letting other programs and external subscribers
// observe a program's own raised values without addressing a real module.
//
// Example: automationd/program/1042/mirror/level
func (Topics) ProgramMirror(address int, property string) string {
	return fmt.Sprintf("%s/%d/mirror/%s", TopicPrefixProgram, address, property)
}

// AllProgramStatuses returns a pattern matching every program's status topic.
//
// Pattern: automationd/program/+/status
func (Topics) AllProgramStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixProgram)
}

// AllProgramErrors returns a pattern matching every program's error topic.
//
// Pattern: automationd/program/+/error
func (Topics) AllProgramErrors() string {
	return fmt.Sprintf("%s/+/error", TopicPrefixProgram)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: automationd/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: automationd/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: automationd/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// UI Topics
// =============================================================================

// UINotification returns the notification topic for a specific UI client.
//
// Example: automationd/ui/panel-kitchen/notification
func (Topics) UINotification(clientID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUI, clientID)
}

// UIPresence returns the presence topic for a specific UI client.
//
// Example: automationd/ui/panel-kitchen/presence
func (Topics) UIPresence(clientID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixUI, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllTopics returns a pattern matching all automationd topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: automationd/#
func (Topics) AllTopics() string {
	return "automationd/#"
}
