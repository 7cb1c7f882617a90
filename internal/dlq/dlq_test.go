package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// fakeJS is an in-memory stand-in for the JetStream slice the store
// uses.
type fakeJS struct {
	msgs      map[uint64]*nats.RawStreamMsg
	first     uint64
	last      uint64
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func newFakeJS() *fakeJS {
	return &fakeJS{msgs: map[uint64]*nats.RawStreamMsg{}, first: 1}
}

func (f *fakeJS) add(subject string, rec Record) uint64 {
	f.last++
	data, _ := json.Marshal(rec)
	f.msgs[f.last] = &nats.RawStreamMsg{Subject: subject, Sequence: f.last, Data: data}
	return f.last
}

func (f *fakeJS) StreamInfo(string, ...nats.JSOpt) (*nats.StreamInfo, error) {
	return &nats.StreamInfo{State: nats.StreamState{
		Msgs:     uint64(len(f.msgs)),
		FirstSeq: f.first,
		LastSeq:  f.last,
	}}, nil
}

func (f *fakeJS) GetMsg(_ string, seq uint64, _ ...nats.JSOpt) (*nats.RawStreamMsg, error) {
	msg, ok := f.msgs[seq]
	if !ok {
		return nil, nats.ErrMsgNotFound
	}
	return msg, nil
}

func (f *fakeJS) DeleteMsg(_ string, seq uint64, _ ...nats.JSOpt) error {
	if _, ok := f.msgs[seq]; !ok {
		return nats.ErrMsgNotFound
	}
	delete(f.msgs, seq)
	return nil
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, struct {
		subject string
		data    []byte
	}{subj, data})
	return &nats.PubAck{}, nil
}

func record(tenant, platform, msgID string) Record {
	return Record{
		Tenant:   tenant,
		Stage:    StageOut,
		Platform: platform,
		MsgID:    msgID,
		Retries:  3,
		TS:       time.Now().UTC(),
		Error:    ErrorInfo{Code: "server", Message: "status 502", Stage: "deliver"},
		Envelope: json.RawMessage(`{"tenant":"` + tenant + `","kind":"text","text":"x"}`),
	}
}

func TestListNewestFirst(t *testing.T) {
	js := newFakeJS()
	js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m1"))
	js.add("greentic.messaging.dlq.out.other.slack", record("other", "slack", "m2"))
	js.add("greentic.messaging.dlq.out.acme.telegram", record("acme", "telegram", "m3"))
	js.add("greentic.messaging.dlq.in.acme.slack", Record{Tenant: "acme", Stage: StageIn, Platform: "slack", MsgID: "m4"})

	store := NewStore(js)
	entries, err := store.List(context.Background(), "acme", StageOut, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Record.MsgID != "m3" || entries[1].Record.MsgID != "m1" {
		t.Errorf("order = %s, %s; want m3, m1", entries[0].Record.MsgID, entries[1].Record.MsgID)
	}

	limited, err := store.List(context.Background(), "acme", StageOut, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Record.MsgID != "m3" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestGetMissing(t *testing.T) {
	store := NewStore(newFakeJS())
	_, err := store.Get(context.Background(), 99)

	var domainErr *core.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != core.ErrorCodePermanent {
		t.Errorf("missing entry error = %v", err)
	}
}

func TestReplayDeletesOnSuccess(t *testing.T) {
	js := newFakeJS()
	seq1 := js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m1"))
	seq2 := js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m2"))

	store := NewStore(js)
	results, err := store.Replay(context.Background(), "acme", StageOut, StageOut, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, res := range results {
		if !res.OK {
			t.Errorf("seq %d failed: %s", res.Seq, res.Err)
		}
	}

	if len(js.published) != 2 {
		t.Fatalf("published %d, want 2", len(js.published))
	}
	if js.published[0].subject != "greentic.messaging.egress.out.acme.slack" {
		t.Errorf("subject = %q", js.published[0].subject)
	}
	if _, ok := js.msgs[seq1]; ok {
		t.Error("replayed entry still on stream")
	}
	if _, ok := js.msgs[seq2]; ok {
		t.Error("replayed entry still on stream")
	}

	// A second replay finds nothing: replay is idempotent.
	results, err = store.Replay(context.Background(), "acme", StageOut, StageOut, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("second replay = %+v", results)
	}
}

func TestReplayByPlatformName(t *testing.T) {
	js := newFakeJS()
	js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m1"))
	js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m2"))
	js.add("greentic.messaging.dlq.out.acme.telegram", record("acme", "telegram", "m3"))

	store := NewStore(js)
	results, err := store.Replay(context.Background(), "acme", "slack", "slack", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, res := range results {
		if !res.OK {
			t.Errorf("seq %d failed: %s", res.Seq, res.Err)
		}
	}
	if len(js.published) != 2 {
		t.Fatalf("published %d, want 2", len(js.published))
	}
	for _, pub := range js.published {
		if pub.subject != "greentic.messaging.egress.out.acme.slack" {
			t.Errorf("subject = %q", pub.subject)
		}
	}
	if len(js.msgs) != 1 {
		t.Error("telegram entry must stay on the stream")
	}

	results, err = store.Replay(context.Background(), "acme", "slack", "slack", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("second replay = %+v", results)
	}
}

func TestListRejectsUnknownStage(t *testing.T) {
	store := NewStore(newFakeJS())
	if _, err := store.List(context.Background(), "acme", "sideways", 0); err == nil {
		t.Error("unknown stage should fail")
	}
	if _, err := store.List(context.Background(), "acme", "", 0); err != nil {
		t.Errorf("empty stage = %v", err)
	}
}

func TestReplayReportsPerEntryFailures(t *testing.T) {
	js := newFakeJS()
	js.add("greentic.messaging.dlq.out.acme.slack", record("acme", "slack", "m1"))
	js.publishErr = errors.New("stream unavailable")

	store := NewStore(js)
	results, err := store.Replay(context.Background(), "acme", StageOut, StageOut, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].OK {
		t.Fatalf("results = %+v", results)
	}
	if len(js.msgs) != 1 {
		t.Error("failed entry must stay on the stream")
	}
}

func TestReplayToIngressNeedsEnv(t *testing.T) {
	rec := Record{Tenant: "acme", Stage: StageIn, Platform: "telegram", Env: "dev", Team: "support"}
	subject, err := replaySubject(&rec, StageIn)
	if err != nil {
		t.Fatal(err)
	}
	if subject != "greentic.messaging.ingress.dev.acme.support.telegram" {
		t.Errorf("subject = %q", subject)
	}

	rec.Env = ""
	if _, err := replaySubject(&rec, StageIn); err == nil {
		t.Error("missing env should fail")
	}
	if _, err := replaySubject(&rec, "sideways"); err == nil {
		t.Error("unknown target should fail")
	}
}

type fakeRunner struct {
	invoked []core.MessageEnvelope
	out     []core.OutMessage
	err     error
}

func (r *fakeRunner) Invoke(_ context.Context, env *core.MessageEnvelope) ([]core.OutMessage, error) {
	r.invoked = append(r.invoked, *env)
	return r.out, r.err
}

func TestReplayThroughRunner(t *testing.T) {
	envelope, _ := json.Marshal(core.MessageEnvelope{
		Tenant: "acme", Platform: core.PlatformTelegram, ChatID: "c1", MsgID: "m1", Text: "hi",
	})
	js := newFakeJS()
	js.add("greentic.messaging.dlq.in.acme.telegram", Record{
		Tenant: "acme", Stage: StageIn, Platform: "telegram", MsgID: "m1",
		Env: "dev", Envelope: envelope,
	})

	runner := &fakeRunner{out: []core.OutMessage{{
		Tenant: "acme", Platform: core.PlatformTelegram, ChatID: "c1",
		Kind: core.OutKindText, Text: "welcome back",
	}}}
	store := NewStore(js)
	store.SetRunner(runner)

	results, err := store.Replay(context.Background(), "acme", StageIn, TargetRunner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].OK {
		t.Fatalf("results = %+v", results)
	}
	if len(runner.invoked) != 1 || runner.invoked[0].MsgID != "m1" {
		t.Errorf("runner saw %+v", runner.invoked)
	}
	if len(js.published) != 1 || js.published[0].subject != "greentic.messaging.egress.out.acme.telegram" {
		t.Errorf("published = %+v", js.published)
	}
	if len(js.msgs) != 0 {
		t.Error("replayed entry still on stream")
	}
}

func TestReplayThroughRunnerNeedsRunner(t *testing.T) {
	js := newFakeJS()
	js.add("greentic.messaging.dlq.in.acme.telegram", Record{
		Tenant: "acme", Stage: StageIn, Platform: "telegram", MsgID: "m1", Envelope: json.RawMessage(`{}`),
	})

	results, err := NewStore(js).Replay(context.Background(), "acme", StageIn, TargetRunner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].OK {
		t.Fatalf("results = %+v", results)
	}
	if len(js.msgs) != 1 {
		t.Error("entry must stay on the stream")
	}
}

type fakeBus struct {
	subject string
	data    []byte
}

func (b *fakeBus) Publish(_ context.Context, subject string, data []byte) error {
	b.subject = subject
	b.data = data
	return nil
}

func TestPublisherSubjectAndTimestamp(t *testing.T) {
	b := &fakeBus{}
	rec := record("acme", "whatsapp", "m9")
	rec.TS = time.Time{}

	if err := NewPublisher(b).Publish(context.Background(), &rec); err != nil {
		t.Fatal(err)
	}
	if b.subject != "greentic.messaging.dlq.out.acme.whatsapp" {
		t.Errorf("subject = %q", b.subject)
	}
	var got Record
	if err := json.Unmarshal(b.data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TS.IsZero() {
		t.Error("timestamp not stamped")
	}
}
