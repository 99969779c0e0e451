package player

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

type commandLog struct {
	mu       sync.Mutex
	commands []string
}

func (c *commandLog) add(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
}

func (c *commandLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *commandLog) PlayAudio(id, url string) error { c.add("play " + url); return nil }
func (c *commandLog) PauseAudio(id string) error     { c.add("pause"); return nil }
func (c *commandLog) StopAudio(id string) error      { c.add("stop"); return nil }

func TestRemoteSourceCommandsAndEvents(t *testing.T) {
	cmds := &commandLog{}
	source := NewRemoteSource(cmds, zaptest.NewLogger(t))

	el, err := source.Load(context.Background(), "/audio/1.mp3")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	id := el.(*remoteElement).id

	if err := el.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	source.Deliver(id, repositories.AudioEventPlaying)
	if ev := <-el.Events(); ev != repositories.AudioEventPlaying {
		t.Errorf("Expected playing event, got %s", ev)
	}

	el.Pause()
	el.Close()
	el.Close()

	source.Deliver(id, repositories.AudioEventEnded)
	select {
	case ev := <-el.Events():
		t.Errorf("Expected no events after close, got %s", ev)
	default:
	}

	want := []string{"play /audio/1.mp3", "pause", "stop"}
	got := cmds.all()
	if len(got) != len(want) {
		t.Fatalf("Expected commands %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRemoteSourceUnknownElement(t *testing.T) {
	source := NewRemoteSource(&commandLog{}, zaptest.NewLogger(t))
	source.Deliver("missing", repositories.AudioEventEnded)
}

func TestRemoteElementPlayAfterClose(t *testing.T) {
	cmds := &commandLog{}
	source := NewRemoteSource(cmds, zaptest.NewLogger(t))

	el, err := source.Load(context.Background(), "/audio/1.mp3")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	el.Close()

	if err := el.Play(); err == nil {
		t.Error("Expected Play on a closed element to fail")
	}
	got := cmds.all()
	if len(got) != 1 || got[0] != "stop" {
		t.Errorf("Expected only the stop command, got %v", got)
	}
}
