package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestSettings_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.Filename)
	require.NoError(t, os.WriteFile(path, []byte("max_messages: 500\nfilter: sender=:1.5\nmode: system\n"), 0o644))

	st := &settings{}
	fs := pflag.NewFlagSet("dbuddy", pflag.ContinueOnError)
	st.addFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--mode", "session", "--group-by", "sender,path"}))

	cfg, gotPath, err := st.load(fs)
	require.NoError(t, err)
	require.Equal(t, path, gotPath)
	require.Equal(t, 500, cfg.MaxMessages)
	require.Equal(t, "sender=:1.5", cfg.Filter)
	require.Equal(t, "session", cfg.Mode)
	require.Equal(t, []string{"sender", "path"}, cfg.GroupBy)
}

func TestSettings_MissingExplicitConfigFails(t *testing.T) {
	st := &settings{configPath: filepath.Join(t.TempDir(), "nope.yaml")}
	_, _, err := st.load(pflag.NewFlagSet("dbuddy", pflag.ContinueOnError))
	require.Error(t, err)
}

func TestSettings_Sources(t *testing.T) {
	st := &settings{buses: []string{"system", "session", "system"}}
	got, err := st.sources()
	require.NoError(t, err)
	require.Equal(t, []bus.Source{bus.SystemBus, bus.SessionBus}, got)

	st.buses = []string{"kernel"}
	_, err = st.sources()
	require.Error(t, err)

	st.buses = nil
	_, err = st.sources()
	require.Error(t, err)
}

func TestFormatLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	ev := &bus.Event{
		Timestamp: at, Kind: bus.MethodReturn, Sender: ":1.9", Destination: ":1.7",
		Serial: 10, ReplySerial: bus.U32(3),
	}
	require.Equal(t, "12:00:00.000000 session return :1.9 -> :1.7 serial=10 reply_serial=3",
		formatLine(ev, nil))
}

type scriptedTransport struct {
	events []bus.RawEvent
}

func (s *scriptedTransport) Open(context.Context) (ingest.Stream, error) {
	return &scriptedStream{events: s.events}, nil
}

type scriptedStream struct {
	mu     sync.Mutex
	events []bus.RawEvent
}

func (s *scriptedStream) Next(ctx context.Context) (bus.RawEvent, error) {
	s.mu.Lock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return bus.RawEvent{}, ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

func TestDumper_PrintsMatchingOnceAndStopsAtCount(t *testing.T) {
	base := time.Now()
	var raws []bus.RawEvent
	for i := range 6 {
		member := "Ping"
		if i%2 == 1 {
			member = "Pong"
		}
		raws = append(raws, bus.RawEvent{
			At: base.Add(time.Duration(i) * time.Millisecond), Kind: bus.Signal,
			Sender: ":1.5", Path: "/a", Interface: "org.example", Member: member, Serial: uint32(i + 1),
		})
	}

	p := ingest.NewPipeline(map[bus.Source]ingest.Transport{bus.SessionBus: &scriptedTransport{events: raws}}, ingest.Options{})
	e := query.NewEngine()
	require.NoError(t, e.ApplyFilter("member=Ping"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	var out bytes.Buffer
	d := &dumper{pipeline: p, history: history.New(100, nil), engine: e, out: &out, wait: 20 * time.Millisecond, count: 3}
	require.NoError(t, d.Run(ctx))
	cancel()
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for i, l := range lines {
		require.Contains(t, l, "org.example.Ping")
		require.Contains(t, l, "serial="+[]string{"1", "3", "5"}[i])
	}
}
