package volink

import (
	"fmt"
	"net"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

type paDeviceFinder struct {
	logger        *zap.SugaredLogger
	sessionLogger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	// sink index -> session with a live subscription. Touched from both the
	// protocol callback goroutine and the event loop
	lock        sync.Mutex
	subscribers map[uint32]*paSession

	sinkChanged chan uint32
	stop        chan struct{}
}

func newDeviceFinder(logger *zap.SugaredLogger) (DeviceFinder, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("volink"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		return nil, err
	}

	sf := &paDeviceFinder{
		logger:        logger.Named("device_finder"),
		sessionLogger: logger.Named("sessions"),
		client:        client,
		conn:          conn,
		subscribers:   make(map[uint32]*paSession),
		sinkChanged:   make(chan uint32, 16),
		stop:          make(chan struct{}),
	}

	sf.logger.Debug("Created PA device finder instance")

	// subscribe to sink events (volume/mute changes)
	if err := client.Request(&proto.Subscribe{Mask: proto.SubscriptionMaskSink}, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe to PulseAudio sink events: %w", err)
	}

	// querying sink state from inside the protocol callback would deadlock
	// against the protocol reader, so changes get handed off to this worker
	go func() {
		for {
			select {
			case sinkIndex := <-sf.sinkChanged:
				sf.dispatchSinkChange(sinkIndex)
			case <-sf.stop:
				return
			}
		}
	}()

	client.Callback = func(msg interface{}) {
		switch msg := msg.(type) {
		case *proto.SubscribeEvent:
			if msg.Event&proto.EventFacilityMask == proto.EventSink &&
				msg.Event.GetType() == proto.EventChange {

				if !sf.subscribed(msg.Index) {
					return
				}

				select {
				case sf.sinkChanged <- msg.Index:
				default:
					// the worker re-queries current state, so collapsing a
					// burst onto the queued event loses nothing
					sf.logger.Debugw("Coalesced sink change event", "sinkIndex", msg.Index)
				}
			}
		}
	}

	return sf, nil
}

// Enumerate lists the server's sinks in whatever order PulseAudio reports them
func (sf *paDeviceFinder) Enumerate() ([]Endpoint, error) {
	request := proto.GetSinkInfoList{}
	reply := proto.GetSinkInfoListReply{}

	if err := sf.client.Request(&request, &reply); err != nil {
		sf.logger.Warnw("Failed to get sink list", "error", err)
		return nil, fmt.Errorf("%w: get sink list: %v", ErrEnumeration, err)
	}

	endpoints := make([]Endpoint, 0, len(reply))

	for _, info := range reply {
		endpoints = append(endpoints, &paEndpoint{
			finder:    sf,
			sinkIndex: info.SinkIndex,
			channels:  info.Channels,
			id:        info.SinkName,
			name:      info.Device,
		})

		sf.logger.Debugw("Enumerated sink info",
			"sinkIndex", info.SinkIndex,
			"sinkName", info.SinkName,
			"description", info.Device)
	}

	return endpoints, nil
}

func (sf *paDeviceFinder) Release() error {
	close(sf.stop)

	if err := sf.conn.Close(); err != nil {
		sf.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	sf.logger.Debug("Released PA device finder instance")

	return nil
}

func (sf *paDeviceFinder) subscribed(sinkIndex uint32) bool {
	sf.lock.Lock()
	defer sf.lock.Unlock()

	_, ok := sf.subscribers[sinkIndex]
	return ok
}

func (sf *paDeviceFinder) register(session *paSession) {
	sf.lock.Lock()
	defer sf.lock.Unlock()

	sf.subscribers[session.sinkIndex] = session
}

func (sf *paDeviceFinder) unregister(session *paSession) {
	sf.lock.Lock()
	defer sf.lock.Unlock()

	if sf.subscribers[session.sinkIndex] == session {
		delete(sf.subscribers, session.sinkIndex)
	}
}

func (sf *paDeviceFinder) dispatchSinkChange(sinkIndex uint32) {
	sf.lock.Lock()
	session := sf.subscribers[sinkIndex]
	sf.lock.Unlock()

	if session == nil {
		return
	}

	request := proto.GetSinkInfo{SinkIndex: sinkIndex}
	reply := proto.GetSinkInfoReply{}

	if err := sf.client.Request(&request, &reply); err != nil {
		sf.logger.Warnw("Failed to query changed sink", "sinkIndex", sinkIndex, "error", err)
		return
	}

	session.deliver(&reply)
}

type paEndpoint struct {
	finder *paDeviceFinder

	sinkIndex uint32
	channels  byte
	id        string
	name      string
}

func (e *paEndpoint) ID() string {
	return e.id
}

func (e *paEndpoint) Name() string {
	return e.name
}

func (e *paEndpoint) OpenSession() (VolumeSession, error) {
	return newPASession(e.finder.sessionLogger, e.finder, e.sinkIndex, e.channels, e.name), nil
}
