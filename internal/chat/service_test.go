package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/research-chat/internal/ai"
	"github.com/suPer8Hu/research-chat/internal/research"
	"github.com/suPer8Hu/research-chat/internal/store/memstore"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const photosynthesisReply = "[Photosynthesis]\n" +
	"Request Type: Concept Explanation\n" +
	"Short Summary: Plants turn light into chemical energy.\n" +
	"Main Content: Chlorophyll absorbs light...\n" +
	"Academic Notes: See Taiz & Zeiger."

// recordingGen answers every request with reply or err and keeps the requests.
type recordingGen struct {
	mu    sync.Mutex
	reply ai.Reply
	err   error
	reqs  []ai.Request
}

func (g *recordingGen) Generate(_ context.Context, req ai.Request) (ai.Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

func (g *recordingGen) last() ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

// gatedGen blocks prompts listed in slow until release is closed.
type gatedGen struct {
	slow    string
	started chan struct{}
	release chan struct{}
}

func newGatedGen(slow string) *gatedGen {
	return &gatedGen{slow: slow, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedGen) Generate(ctx context.Context, req ai.Request) (ai.Reply, error) {
	if req.Messages[len(req.Messages)-1].Content == g.slow {
		g.started <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return ai.Reply{}, ctx.Err()
		}
	}
	return ai.Reply{Text: photosynthesisReply}, nil
}

// streamingGen implements both Generator and ai.StreamProvider.
type streamingGen struct {
	chunks  []string
	streams int
}

func (g *streamingGen) Generate(context.Context, ai.Request) (ai.Reply, error) {
	return ai.Reply{Text: strings.Join(g.chunks, "")}, nil
}

func (g *streamingGen) GenerateStream(_ context.Context, _ ai.Request, onChunk func(string)) (ai.Reply, error) {
	g.streams++
	for _, c := range g.chunks {
		onChunk(c)
	}
	return ai.Reply{Text: strings.Join(g.chunks, "")}, nil
}

func newTestService(t *testing.T, gen Generator, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(newTestStore(t, memstore.New()), gen, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, &recordingGen{})
	require.Error(t, err)
	_, err = NewService(NewStore(memstore.New()), nil)
	require.Error(t, err)
}

func TestSend_Scenario(t *testing.T) {
	gen := &recordingGen{reply: ai.Reply{Text: photosynthesisReply}}
	svc := newTestService(t, gen)
	ctx := context.Background()

	sessions := svc.Store().ListSessions()
	require.Len(t, sessions, 1)
	require.Equal(t, "New Research Discussion", sessions[0].Title)

	res, err := svc.Send(ctx, "Explain photosynthesis")
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, res.State)
	require.NotNil(t, res.Reply.Parsed)
	require.Equal(t, "Photosynthesis", res.Reply.Parsed.Title)
	require.Equal(t, "concept explanation", res.Reply.Parsed.Type)

	sess, ok := svc.Store().ActiveSession()
	require.True(t, ok)
	require.Equal(t, "Explain photosynthesis", sess.Title)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, RoleUser, sess.Messages[0].Role)
	require.Equal(t, RoleAssistant, sess.Messages[1].Role)
	require.Equal(t, photosynthesisReply, sess.Messages[1].Content)
	require.Equal(t, "Plants turn light into chemical energy.", sess.Messages[1].Parsed.Summary)

	req := gen.last()
	require.Equal(t, research.English().SystemInstruction, req.SystemInstruction)
	require.True(t, req.Grounding)
	require.InDelta(t, 0.7, *req.Temperature, 1e-6)
	require.Equal(t, []ai.Message{{Role: ai.RoleUser, Content: "Explain photosynthesis"}}, req.Messages)
	require.Equal(t, StateIdle, svc.State(sess.ID))
}

func TestSend_CopiesGroundingSources(t *testing.T) {
	gen := &recordingGen{reply: ai.Reply{
		Text:    photosynthesisReply,
		Sources: []ai.Source{{URI: "https://a.example", Title: "A"}},
	}}
	svc := newTestService(t, gen, WithGrounding(false), WithTemperature(0.2))

	res, err := svc.Send(context.Background(), "question")
	require.NoError(t, err)
	require.Equal(t, []research.Source{{URI: "https://a.example", Title: "A"}}, res.Reply.Parsed.Sources)
	require.False(t, gen.last().Grounding)
	require.InDelta(t, 0.2, *gen.last().Temperature, 1e-6)
}

func TestSend_FailureAppendsFallback(t *testing.T) {
	rep := &recordingReporter{}
	boom := errors.New("quota exceeded")
	svc := newTestService(t, &recordingGen{err: boom}, WithReporter(rep))
	id := svc.Store().ActiveSessionID()

	res, err := svc.Send(context.Background(), "Explain entropy")
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, boom)
	require.Equal(t, KindTransport, KindOf(res.Err))

	sess, _ := svc.Store().Session(id)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, "Explain entropy", sess.Messages[0].Content)
	require.Equal(t, RoleAssistant, sess.Messages[1].Role)
	require.Equal(t, research.English().FallbackReply, sess.Messages[1].Content)
	require.Nil(t, sess.Messages[1].Parsed)

	recs := rep.all()
	require.Len(t, recs, 1)
	require.Equal(t, string(KindTransport), recs[0].Kind)
	require.Equal(t, id, recs[0].SessionID)
	require.Contains(t, recs[0].Error, "quota exceeded")
	require.False(t, svc.InFlight(id))
}

func TestSend_EmptyReplyIsTransportFailure(t *testing.T) {
	svc := newTestService(t, &recordingGen{reply: ai.Reply{Text: "   "}})
	res, err := svc.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, ai.ErrEmptyReply)
}

func TestSend_IgnoresBlankInput(t *testing.T) {
	gen := &recordingGen{reply: ai.Reply{Text: photosynthesisReply}}
	svc := newTestService(t, gen)

	for _, in := range []string{"", "   ", "\n\t"} {
		res, err := svc.Send(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, StateIgnored, res.State)
		require.Equal(t, ReasonEmptyInput, res.Reason)
	}
	require.Empty(t, gen.reqs)
	active, _ := svc.Store().ActiveSession()
	require.Empty(t, active.Messages)
}

func TestSendTo_UnknownSession(t *testing.T) {
	gen := &recordingGen{reply: ai.Reply{Text: "x"}}
	svc := newTestService(t, gen)

	_, err := svc.SendTo(context.Background(), "missing", "hello")
	require.True(t, IsNotFound(err))
	require.Empty(t, gen.reqs)
}

func TestSend_SingleInFlightPerSession(t *testing.T) {
	gen := newGatedGen("slow question")
	svc := newTestService(t, gen)
	ctx := context.Background()
	first := svc.Store().ActiveSessionID()

	done := make(chan Result, 1)
	go func() {
		res, err := svc.SendTo(ctx, first, "slow question")
		require.NoError(t, err)
		done <- res
	}()
	<-gen.started

	require.True(t, svc.InFlight(first))
	require.True(t, svc.ActiveInFlight())
	require.Equal(t, StateSending, svc.State(first))

	res, err := svc.SendTo(ctx, first, "second question")
	require.NoError(t, err)
	require.Equal(t, StateIgnored, res.State)
	require.Equal(t, ReasonInFlight, res.Reason)
	sess, _ := svc.Store().Session(first)
	require.Len(t, sess.Messages, 1)

	// other sessions are not blocked
	other := svc.Store().CreateSession(ctx)
	res, err = svc.SendTo(ctx, other.ID, "fast question")
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, res.State)
	require.False(t, svc.ActiveInFlight())

	close(gen.release)
	res = <-done
	require.Equal(t, StateSucceeded, res.State)
	require.False(t, svc.InFlight(first))

	sess, _ = svc.Store().Session(first)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, "slow question", sess.Messages[0].Content)
}

func TestSend_ConcurrentSendsOnOneSession(t *testing.T) {
	gen := newGatedGen("q")
	svc := newTestService(t, gen)
	id := svc.Store().ActiveSessionID()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ignored int
	)
	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _ = svc.SendTo(context.Background(), id, "q")
	}()
	<-gen.started

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SendTo(context.Background(), id, "q")
			if err == nil && res.State == StateIgnored {
				mu.Lock()
				ignored++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(gen.release)
	<-first

	require.Equal(t, 10, ignored)
	sess, _ := svc.Store().Session(id)
	require.Len(t, sess.Messages, 2)
}

func TestSend_ContextWindowSkipsFallbacks(t *testing.T) {
	gen := &recordingGen{reply: ai.Reply{Text: photosynthesisReply}}
	svc := newTestService(t, gen, WithContextWindow(3))
	ctx := context.Background()
	id := svc.Store().ActiveSessionID()

	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}
	gen.err = errors.New("down")
	_, err := svc.Send(ctx, "q3")
	require.NoError(t, err)
	gen.err = nil

	_, err = svc.Send(ctx, "q4")
	require.NoError(t, err)

	req := gen.last()
	require.Len(t, req.Messages, 4)
	got := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		got = append(got, m.Role+":"+m.Content)
	}
	require.Equal(t, []string{
		"user:q2",
		"assistant:" + photosynthesisReply,
		"user:q3",
		"user:q4",
	}, got)

	sess, _ := svc.Store().Session(id)
	require.Len(t, sess.Messages, 10)
}

func TestSend_TimeoutIsTransportFailure(t *testing.T) {
	gen := newGatedGen("wait forever")
	svc := newTestService(t, gen, WithTimeout(20*time.Millisecond))

	res, err := svc.Send(context.Background(), "wait forever")
	require.NoError(t, err)
	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

// cancelAwareBlobs fails saves on a done context, like a network-backed store.
type cancelAwareBlobs struct {
	*memstore.Store
}

func (b cancelAwareBlobs) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Store.Save(ctx, key, data)
}

func TestSend_CancelledCallerStillPersistsFallback(t *testing.T) {
	blobs := cancelAwareBlobs{memstore.New()}
	gen := newGatedGen("hello there")
	svc, err := NewService(newTestStore(t, blobs), gen)
	require.NoError(t, err)
	id := svc.Store().ActiveSessionID()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		res, _ := svc.SendTo(ctx, id, "hello there")
		done <- res
	}()
	<-gen.started
	cancel()
	res := <-done
	require.Equal(t, StateFailed, res.State)

	restored := newTestStore(t, blobs)
	got, ok := restored.Session(id)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	require.Equal(t, RoleUser, got.Messages[0].Role)
	require.True(t, got.Messages[1].IsFallback())
}

func TestSend_StreamsChunks(t *testing.T) {
	gen := &streamingGen{chunks: []string{"[Streamed]\n", "Main Content: ", "part one"}}
	svc := newTestService(t, gen)

	var got []string
	res, err := svc.Send(context.Background(), "stream please", WithOnChunk(func(s string) {
		got = append(got, s)
	}))
	require.NoError(t, err)
	require.Equal(t, gen.chunks, got)
	require.Equal(t, 1, gen.streams)
	require.Equal(t, "Streamed", res.Reply.Parsed.Title)
	require.Equal(t, "part one", res.Reply.Parsed.MainContent)

	// without a chunk callback the plain call is used
	_, err = svc.Send(context.Background(), "no stream")
	require.NoError(t, err)
	require.Equal(t, 1, gen.streams)
}
