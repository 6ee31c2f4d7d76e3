package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
)

type fakeStream struct {
	jetstream.Stream
	info *jetstream.StreamInfo
}

func (s *fakeStream) CachedInfo() *jetstream.StreamInfo { return s.info }

// fakeStreams implements the stream lookups ensureStream uses. Other
// StreamManager methods panic through the nil embedded interface.
type fakeStreams struct {
	jetstream.StreamManager
	existing  *jetstream.StreamConfig
	lookupErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
}

func (f *fakeStreams) Stream(_ context.Context, name string) (jetstream.Stream, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.existing == nil || f.existing.Name != name {
		return nil, jetstream.ErrStreamNotFound
	}
	return &fakeStream{info: &jetstream.StreamInfo{Config: *f.existing}}, nil
}

func (f *fakeStreams) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = append(f.created, cfg)
	return &fakeStream{info: &jetstream.StreamInfo{Config: cfg}}, nil
}

func (f *fakeStreams) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updated = append(f.updated, cfg)
	return &fakeStream{info: &jetstream.StreamInfo{Config: cfg}}, nil
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)

	assert.Equal(t, "QUIZ_EVENTS", sc.Name)
	assert.Equal(t, []string{"quiz.events.>"}, sc.Subjects)
	assert.True(t, isStreamConfigEqual(sc, streamConfig(cfg)))

	cfg.SubjectPrefix = "other.events"
	assert.False(t, isStreamConfigEqual(sc, streamConfig(cfg)))
}

func TestEnsureStream(t *testing.T) {
	want := streamConfig(DefaultJetStreamConfig())
	drifted := want
	drifted.MaxAge = time.Hour

	tests := []struct {
		name        string
		streams     *fakeStreams
		wantCreated int
		wantUpdated int
		wantErr     bool
	}{
		{name: "missing stream is created", streams: &fakeStreams{}, wantCreated: 1},
		{name: "matching stream is left alone", streams: &fakeStreams{existing: &want}},
		{name: "drifted stream is updated", streams: &fakeStreams{existing: &drifted}, wantUpdated: 1},
		{
			name:    "lookup failure is returned",
			streams: &fakeStreams{lookupErr: errors.New("nats: timeout")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ensureStream(context.Background(), tt.streams, want)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, tt.streams.created, tt.wantCreated)
			assert.Len(t, tt.streams.updated, tt.wantUpdated)
			for _, cfg := range append(tt.streams.created, tt.streams.updated...) {
				assert.True(t, isStreamConfigEqual(want, cfg))
			}
		})
	}
}

func TestConnectOptions(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	cfg.ClientName = "quiz-gateway-test"
	cfg.MaxReconnects = 5
	cfg.ReconnectWait = 250 * time.Millisecond

	opts := nats.GetDefaultOptions()
	for _, opt := range connectOptions(cfg) {
		require.NoError(t, opt(&opts))
	}

	assert.Equal(t, "quiz-gateway-test", opts.Name)
	assert.Equal(t, 5, opts.MaxReconnect)
	assert.Equal(t, 250*time.Millisecond, opts.ReconnectWait)
	assert.NotNil(t, opts.DisconnectedErrCB)
	assert.NotNil(t, opts.ReconnectedCB)
	assert.NotNil(t, opts.AsyncErrorCB)
}

func TestNatsMsg(t *testing.T) {
	msg := natsMsg(Message{
		ID:        "evt-1",
		Subject:   "quiz.events.slide",
		EventType: protocol.EventTypeSlide,
		Data:      []byte(`{}`),
	})

	assert.Equal(t, "quiz.events.slide", msg.Subject)
	assert.Equal(t, []byte(`{}`), msg.Data)
	assert.Equal(t, "slide", msg.Header.Get("Event-Type"))
	assert.Equal(t, "evt-1", msg.Header.Get("Event-ID"))
}
