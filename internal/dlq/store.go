package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/collab"
	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/subjects"
)

// JetStream is the slice of the JetStream context the store uses. The
// real nats.JetStreamContext satisfies it.
type JetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	GetMsg(name string, seq uint64, opts ...nats.JSOpt) (*nats.RawStreamMsg, error)
	DeleteMsg(name string, seq uint64, opts ...nats.JSOpt) error
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Entry pairs a record with its stream sequence, the handle used by
// show and replay.
type Entry struct {
	Seq    uint64 `json:"seq"`
	Record Record `json:"record"`
}

// ReplayResult reports the outcome of replaying one entry.
type ReplayResult struct {
	Seq uint64 `json:"seq"`
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

// TargetRunner replays an ingress-stage entry through the flow runner
// instead of the ingress subject, publishing whatever the runner
// returns straight to the egress stream.
const TargetRunner = "runner"

// Store reads and replays dead-letter entries.
type Store struct {
	js     JetStream
	runner collab.Runner
}

func NewStore(js JetStream) *Store {
	return &Store{js: js}
}

// SetRunner installs the flow-runner client used by runner-target
// replays.
func (s *Store) SetRunner(r collab.Runner) {
	s.runner = r
}

// List returns up to limit entries for a tenant and stage, newest
// first. The stage may be a platform name, which selects out-stage
// entries for that platform only.
func (s *Store) List(ctx context.Context, tenant, stage string, limit int) ([]Entry, error) {
	stage, platform, err := normalizeStage(stage)
	if err != nil {
		return nil, err
	}
	info, err := s.js.StreamInfo(subjects.DLQStream, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dlq stream info: %w", err)
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}

	var entries []Entry
	for seq := info.State.LastSeq; seq >= info.State.FirstSeq && seq > 0; seq-- {
		if limit > 0 && len(entries) >= limit {
			break
		}
		raw, err := s.js.GetMsg(subjects.DLQStream, seq, nats.Context(ctx))
		if err != nil {
			// Interior deletes leave sequence gaps.
			if errors.Is(err, nats.ErrMsgNotFound) {
				continue
			}
			return nil, fmt.Errorf("dlq get %d: %w", seq, err)
		}
		if !matchSubject(raw.Subject, stage, tenant, platform) {
			continue
		}
		entry, err := decodeEntry(raw)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Get fetches one entry by sequence.
func (s *Store) Get(ctx context.Context, seq uint64) (*Entry, error) {
	raw, err := s.js.GetMsg(subjects.DLQStream, seq, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrMsgNotFound) {
			return nil, &core.DomainError{Code: core.ErrorCodePermanent, Message: fmt.Sprintf("no dead-letter entry at sequence %d", seq)}
		}
		return nil, err
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Replay republishes matching entries to the target and deletes each
// one that was accepted. The target is a stage, a platform name (the
// egress subject for that platform), or TargetRunner. A failing entry
// is reported and skipped; its siblings still replay.
func (s *Store) Replay(ctx context.Context, tenant, stage, target string, limit int) ([]ReplayResult, error) {
	entries, err := s.List(ctx, tenant, stage, limit)
	if err != nil {
		return nil, err
	}

	results := make([]ReplayResult, 0, len(entries))
	for _, entry := range entries {
		result := ReplayResult{Seq: entry.Seq}
		err := s.replayOne(ctx, &entry.Record, target)
		if err == nil {
			err = s.js.DeleteMsg(subjects.DLQStream, entry.Seq, nats.Context(ctx))
		}
		if err != nil {
			result.Err = err.Error()
		} else {
			result.OK = true
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Store) replayOne(ctx context.Context, rec *Record, target string) error {
	if target == TargetRunner {
		return s.replayThroughRunner(ctx, rec)
	}
	subject, err := replaySubject(rec, target)
	if err != nil {
		return err
	}
	_, err = s.js.Publish(subject, rec.Envelope, nats.Context(ctx))
	return err
}

// replayThroughRunner invokes the flow runner with the original
// inbound envelope and publishes the produced outbound messages. Only
// ingress-stage records carry a MessageEnvelope, so anything else is
// rejected.
func (s *Store) replayThroughRunner(ctx context.Context, rec *Record) error {
	if s.runner == nil {
		return errors.New("no flow runner configured; set runner.url")
	}
	if rec.Stage != StageIn {
		return fmt.Errorf("record %s is not an ingress record", rec.MsgID)
	}
	var env core.MessageEnvelope
	if err := json.Unmarshal(rec.Envelope, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	out, err := s.runner.Invoke(ctx, &env)
	if err != nil {
		return fmt.Errorf("invoke runner: %w", err)
	}
	for i := range out {
		data, err := json.Marshal(&out[i])
		if err != nil {
			return err
		}
		subject := subjects.Egress(out[i].Tenant, string(out[i].Platform))
		if _, err := s.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func replaySubject(rec *Record, target string) (string, error) {
	if core.Platform(target).Valid() {
		return subjects.Egress(rec.Tenant, target), nil
	}
	switch target {
	case StageOut:
		return subjects.Egress(rec.Tenant, rec.Platform), nil
	case StageIn:
		if rec.Env == "" {
			return "", fmt.Errorf("record %s has no environment for ingress replay", rec.MsgID)
		}
		team := rec.Team
		if team == "" {
			team = "default"
		}
		return subjects.Ingress(rec.Env, rec.Tenant, team, rec.Platform), nil
	}
	return "", fmt.Errorf("unknown replay target %q", target)
}

func decodeEntry(raw *nats.RawStreamMsg) (Entry, error) {
	var rec Record
	if err := json.Unmarshal(raw.Data, &rec); err != nil {
		return Entry{}, fmt.Errorf("dlq record %d: %w", raw.Sequence, err)
	}
	return Entry{Seq: raw.Sequence, Record: rec}, nil
}
