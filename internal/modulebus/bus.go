package modulebus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/automationd/internal/automation"
	"github.com/nerrad567/automationd/internal/infrastructure/mqtt"
)

// statePayload is the wire shape published to a module's state topic: a flat
// map of property name to value. A bridge publishes one of these whenever
// any of its module's properties changes.
type statePayload map[string]any

// Bus adapts the MQTT-transported module bus to automation.ModuleBus and
// automation.ModulePublisher. It keeps a Registry in sync with incoming
// state messages and fans each resulting PropertyChange out to every
// subscriber, and it publishes a program's own property changes back onto
// the bus as mirror topics.
type Bus struct {
	client *mqtt.Client
	reg    *Registry
	logger Logger

	subMu       sync.RWMutex
	subscribers []func(automation.PropertyChange)
}

// NewBus creates a Bus. Call Start to begin consuming module state.
func NewBus(client *mqtt.Client, reg *Registry) *Bus {
	return &Bus{
		client: client,
		reg:    reg,
		logger: noopLogger{},
	}
}

// SetLogger sets the bus's logger.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Start subscribes to every module's state topic. Incoming messages update
// the registry and are dispatched to every Subscribe callback as a
// PropertyChange per changed property.
func (b *Bus) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.AllModuleStates()
	return b.client.Subscribe(topic, 1, func(topic string, payload []byte) error {
		return b.handleState(ctx, topic, payload)
	})
}

// Stop unsubscribes from module state topics.
func (b *Bus) Stop() error {
	return b.client.Unsubscribe(mqtt.Topics{}.AllModuleStates())
}

func (b *Bus) handleState(ctx context.Context, topic string, payload []byte) error {
	id := moduleIDFromStateTopic(topic)
	if id == "" {
		b.logger.Warn("module state on unrecognized topic", "topic", topic)
		return nil
	}

	var state statePayload
	if err := json.Unmarshal(payload, &state); err != nil {
		b.logger.Warn("malformed module state payload", "topic", topic, "error", err)
		return fmt.Errorf("decoding state payload: %w", err)
	}

	existing, err := b.reg.GetModule(ctx, id)
	domain, protocol := "", ""
	if err == nil && existing != nil {
		domain, protocol = existing.Domain, existing.Protocol
	}
	if domain == "" {
		domain = domainFromPayload(state)
	}

	for name, value := range state {
		if name == "_domain" {
			continue
		}
		if err := b.reg.SetParameter(ctx, id, domain, protocol, name, value); err != nil {
			b.logger.Warn("failed to update module parameter", "id", id, "name", name, "error", err)
			continue
		}
		b.dispatch(automation.PropertyChange{
			SenderAddress: 0,
			SenderRef:     nil,
			Module:        id,
			Domain:        domain,
			Parameter:     automation.NewParameter(name, value),
		})
	}
	return nil
}

func (b *Bus) dispatch(change automation.PropertyChange) {
	b.subMu.RLock()
	subs := make([]func(automation.PropertyChange), len(b.subscribers))
	copy(subs, b.subscribers)
	b.subMu.RUnlock()

	for _, fn := range subs {
		if fn == nil {
			continue // unsubscribed
		}
		fn(change)
	}
}

// Subscribe implements automation.ModuleBus. The returned unsubscribe func
// removes fn; it is safe to call more than once.
func (b *Bus) Subscribe(fn func(automation.PropertyChange)) (unsubscribe func()) {
	b.subMu.Lock()
	b.subscribers = append(b.subscribers, fn)
	idx := len(b.subscribers) - 1
	b.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			defer b.subMu.Unlock()
			if idx < len(b.subscribers) {
				b.subscribers[idx] = nil
			}
		})
	}
}

// RaiseEvent implements automation.ModulePublisher. It publishes the
// program's property as a retained mirror topic and records it as a
// parameter on that program's synthetic mirror module, so other programs
// and UIs observe program-raised state the same way they observe any other
// module's state.
func (b *Bus) RaiseEvent(address int, domain string, property string, value string) {
	topic := mqtt.Topics{}.ProgramMirror(address, property)
	payload := []byte(fmt.Sprintf("%q", value))
	if err := b.client.PublishRetained(topic, payload); err != nil {
		b.logger.Warn("failed to publish program mirror", "address", address, "property", property, "error", err)
	}

	mirrorID := mirrorModuleID(address)
	if err := b.reg.SetParameter(context.Background(), mirrorID, domain, "", property, value); err != nil {
		b.logger.Warn("failed to mirror program property", "address", address, "property", property, "error", err)
	}
}

func mirrorModuleID(address int) string {
	return fmt.Sprintf("program-%d", address)
}

func moduleIDFromStateTopic(topic string) string {
	const prefix = mqtt.TopicPrefixModule + "/state/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}

func domainFromPayload(state statePayload) string {
	if d, ok := state["_domain"].(string); ok {
		return d
	}
	return "unknown"
}
