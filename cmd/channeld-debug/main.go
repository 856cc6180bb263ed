// Command channeld-debug drives a Registry/Dispatcher/smartcard.Bridge
// with in-process fakes and dumps the resulting state as JSON. It is an
// operational aid for exercising the fabric's wiring end to end, not a
// real server - there is no listener and no real guest graphics
// instance behind it.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	channeld "github.com/spice-project/channeld"
	"github.com/spice-project/channeld/internal/channel"
	"github.com/spice-project/channeld/internal/dispatch"
	"github.com/spice-project/channeld/internal/logging"
	"github.com/spice-project/channeld/internal/smartcard"
	"github.com/spice-project/channeld/internal/worker"
)

func main() {
	var verbose = flag.Bool("v", false, "Verbose output")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	metrics := channeld.NewMetrics()
	obs := channeld.NewMetricsObserver(metrics)

	registry := channeld.NewRegistry(logger, obs)
	registry.SetMouseAllowedCallback(func(allowed bool, xRes, yRes uint32) {
		logger.Info("mouse allowed changed", "allowed", allowed, "x_res", xRes, "y_res", yRes)
	})

	device := channeld.NewMockGuestDevice()
	dispatcher := channeld.NewDispatcher(device, logger, obs)
	registry.Add(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &renderBackend{dispatcher: dispatcher, registry: registry}
	w := worker.New(ctx, dispatcher.Queue, backend, logger)
	w.Start()
	defer w.Stop()

	logger.Info("creating primary surface")
	dispatcher.CreatePrimarySurfaceAsync(1, channeld.SurfaceCreate{Width: 1024, Height: 768, MouseMode: true}, 1)

	time.Sleep(10 * time.Millisecond)

	logger.Info("driving smartcard bridge through the channel fabric")
	readers := smartcard.NewReaders()
	fakeDev := smartcard.NewFakeDevice()
	bridge := smartcard.NewBridge(fakeDev, readers, logger, obs)
	bridges := smartcard.NewBridgeSet()
	bridges.Add(bridge)

	scChannel := channel.New(smartcard.ChannelType, 0, smartcard.ChannelCallbacks(bridges), logger)
	var clientWire bytes.Buffer
	clientSender := smartcard.NewChannelSender(&clientWire, 0)
	if _, err := scChannel.Connect(1, clientSender, false, nil); err != nil {
		logger.Error("smartcard channel connect failed", "error", err)
	}

	fakeDev.Feed(frame(smartcard.MsgReaderAdd, 0, nil))
	item, err := bridge.ReadOneMessage()
	if err != nil {
		logger.Error("bridge read failed", "error", err)
	} else if item != nil {
		logger.Info("bridge assembled message", "type", item.Header.Type, "length", item.Header.Length)
	}

	logger.Info("wiring display/cursor channel callbacks")
	displayChannel := channel.New(channeld.ChannelTypeDisplay, 0, channeld.DisplayChannelCallbacks(dispatcher), logger)
	cursorChannel := channel.New(channeld.ChannelTypeCursor, 0, channeld.CursorChannelCallbacks(dispatcher), logger)
	if _, err := displayChannel.Connect(1, discardSender{}, false, nil); err != nil {
		logger.Error("display channel connect failed", "error", err)
	}
	if _, err := cursorChannel.Connect(1, discardSender{}, false, nil); err != nil {
		logger.Error("cursor channel connect failed", "error", err)
	}

	time.Sleep(10 * time.Millisecond)

	scChannel.Disconnect(1)
	displayChannel.Disconnect(1)
	cursorChannel.Disconnect(1)

	snap, err := registry.DumpState()
	if err != nil {
		logger.Error("dump state failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(snap))

	mSnap := metrics.Snapshot()
	fmt.Printf("dispatches=%d async_completions=%d bridge_reads=%d\n",
		mSnap.DispatchCount, mSnap.AsyncCompletions, mSnap.BridgeReadMessages)
}

// renderBackend is a minimal worker.Backend: it acknowledges the pending
// bitmask on WAKEUP/OOM and resolves async commands immediately, as if
// the render pipeline were instantaneous. A real server's backend would
// apply the message to an actual rendering/surface pipeline before
// calling HandleAsyncComplete.
type renderBackend struct {
	dispatcher *channeld.Dispatcher
	registry   *channeld.Registry
}

func (b *renderBackend) Process(msg dispatch.Message) error {
	switch msg.Tag {
	case dispatch.TagWakeup:
		b.dispatcher.AckWakeup()
	case dispatch.TagOOM:
		b.dispatcher.AckOOM()
	case dispatch.TagCreatePrimarySurfaceAsync:
		p, err := dispatch.PayloadAs[channeld.CreatePrimarySurfaceAsyncPayload](msg)
		if err != nil {
			return err
		}
		b.dispatcher.HandleAsyncComplete(p.Cookie, b.registry)
	case dispatch.TagDestroyPrimarySurfaceAsync:
		p, err := dispatch.PayloadAs[channeld.DestroyPrimarySurfaceAsyncPayload](msg)
		if err != nil {
			return err
		}
		b.dispatcher.HandleAsyncComplete(p.Cookie, b.registry)
	case dispatch.TagGLDrawAsync:
		p, err := dispatch.PayloadAs[channeld.GLDrawAsyncPayload](msg)
		if err != nil {
			return err
		}
		b.dispatcher.HandleAsyncComplete(p.Cookie, b.registry)
	}
	return nil
}

// discardSender is the debug command's ItemSender for channels that don't
// have a real wire transport wired up yet (display, cursor): it drops
// whatever the channel pushes to it, same role as /dev/null.
type discardSender struct{}

func (discardSender) SendItem(channel.Item) error { return nil }

// frame builds a minimal smartcard wire message: a 12-byte header
// followed by payload, enough to exercise ReadOneMessage.
func frame(msgType, readerID uint32, payload []byte) []byte {
	buf := make([]byte, smartcard.HeaderSize+len(payload))
	smartcard.PutHeader(buf, smartcard.Header{Type: msgType, Length: uint32(len(payload)), ReaderID: readerID})
	copy(buf[smartcard.HeaderSize:], payload)
	return buf
}
