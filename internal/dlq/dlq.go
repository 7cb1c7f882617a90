// Package dlq records undeliverable messages on a durable dead-letter
// stream and replays them on demand.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/subjects"
)

// Stages name the pipeline side a record came from.
const (
	StageIn  = "in"
	StageOut = "out"
)

// ErrorInfo captures why a message was dead-lettered.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

// Record is the dead-letter payload. Envelope holds the original
// message verbatim so a replay loses nothing.
type Record struct {
	Tenant   string          `json:"tenant"`
	Stage    string          `json:"stage"`
	Platform string          `json:"platform"`
	MsgID    string          `json:"msg_id"`
	Retries  int             `json:"retries"`
	TS       time.Time       `json:"ts"`
	Env      string          `json:"env,omitempty"`
	Team     string          `json:"team,omitempty"`
	Error    ErrorInfo       `json:"error"`
	Envelope json.RawMessage `json:"envelope"`
}

// busPublisher is the slice of the bus the DLQ writer needs.
type busPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Publisher writes records to the dead-letter stream.
type Publisher struct {
	bus busPublisher
}

func NewPublisher(bus busPublisher) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) Publish(ctx context.Context, rec *Record) error {
	if rec.TS.IsZero() {
		rec.TS = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, subjects.DLQ(rec.Stage, rec.Tenant, rec.Platform), data)
}

// normalizeStage resolves a stage selector. A platform name selects
// the out stage narrowed to that platform; anything else but in/out or
// empty is rejected so a typo never silently matches nothing.
func normalizeStage(stage string) (string, string, error) {
	switch {
	case stage == "" || stage == StageIn || stage == StageOut:
		return stage, "", nil
	case core.Platform(stage).Valid():
		return StageOut, stage, nil
	}
	return "", "", fmt.Errorf("unknown stage %q: want in, out, or a platform name", stage)
}

// matchSubject reports whether a stream subject belongs to the given
// tenant, stage, and platform. Empty selectors match everything.
func matchSubject(subject, stage, tenant, platform string) bool {
	parts := strings.Split(subject, ".")
	// greentic.messaging.dlq.{stage}.{tenant}.{platform}
	if len(parts) != 6 || parts[2] != "dlq" {
		return false
	}
	if stage != "" && parts[3] != stage {
		return false
	}
	if tenant != "" && parts[4] != tenant {
		return false
	}
	if platform != "" && parts[5] != platform {
		return false
	}
	return true
}
