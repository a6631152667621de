package stream

import (
	"context"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Collector feeds every sample a Manager accepts into the ingestion
// pipeline. Stopping the collector shuts the manager down.
type Collector struct {
	m *Manager
}

func NewCollector(m *Manager) *Collector {
	return &Collector{m: m}
}

func (c *Collector) Start(out chan<- domain.Sample) error {
	if err := c.m.setOutput(out); err != nil {
		return err
	}
	return c.m.Start(context.Background())
}

func (c *Collector) Stop() error {
	return c.m.Close()
}

// Manager exposes the underlying live view.
func (c *Collector) Manager() *Manager { return c.m }

var _ ports.Collector = (*Collector)(nil)

type nopObservability struct{}

func (nopObservability) LogDebug(string, ...ports.Field)                  {}
func (nopObservability) LogInfo(string, ...ports.Field)                   {}
func (nopObservability) LogWarn(string, ...ports.Field)                   {}
func (nopObservability) LogError(string, error, ...ports.Field)           {}
func (nopObservability) LogCritical(string, error, ...ports.Field)        {}
func (nopObservability) IncCounter(string, float64)                       {}
func (nopObservability) ObserveLatency(string, float64)                   {}
func (nopObservability) SetGauge(string, float64)                         {}
func (nopObservability) RecordDLQ(ports.WALEntryID, domain.Sample, error) {}
