package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/discovery"
	"github.com/muurk/midealan/internal/logging"
	"github.com/muurk/midealan/protocol"
	"go.uber.org/zap"
)

// Options is the user-visible session configuration: plain enumerated
// fields, not a layered config object.
type Options struct {
	Name               string
	DeviceID           uint64
	IP                 string
	Port               uint16 // default discovery.DefaultControlPort
	TokenHex           string // required for Protocol == 3
	KeyHex             string // required for Protocol == 3
	Protocol           byte   // 2 or 3, default 3
	RefreshInterval    time.Duration
	HeartbeatInterval  time.Duration
	Adapter            adapter.Adapter
	Logger             *zap.Logger
}

// Observer is invoked synchronously on the session's background task for
// every status update and availability change. Implementations MUST NOT
// block.
type Observer func(adapter.Status)

// ObserverHandle is returned by RegisterObserver and identifies a
// registration for UnregisterObserver, a tagged handle rather than
// closure identity comparison so the same function value can be
// registered more than once.
type ObserverHandle int64

type observerEntry struct {
	handle ObserverHandle
	fn     Observer
}

type cmdKind int

const (
	cmdSend cmdKind = iota
	cmdRefresh
	cmdDropForReconnect
)

type command struct {
	kind        cmdKind
	messageType protocol.MessageType
	body        []byte
	wait        bool
	result      chan error
}

type pendingRefresh struct {
	result   chan error
	deadline time.Time
	keys     []string
}

// Session is one device's connect/authenticate/ready/reconnect lifecycle.
// It exclusively owns its socket, receive buffer, and frame counters;
// everything it shares with other goroutines (state, descriptor,
// observers) is guarded by mu.
type Session struct {
	opts    Options
	adapter adapter.Adapter
	token   []byte
	key     []byte
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	descriptor  discovery.Descriptor
	observers   []observerEntry
	nextHandle  ObserverHandle

	cmdCh    chan *command
	closeCh  chan struct{}
	closedCh chan struct{}
	openOnce sync.Once
	closeOnce sync.Once
	wg       sync.WaitGroup

	// Owned exclusively by the background task; never touched from
	// another goroutine.
	conn                      net.Conn
	tcpKey                    []byte
	requestCounter            uint16
	responseCounter           uint16
	recvBuffer                []byte
	applianceProtocolVersion  byte
	unsupported               *unsupportedSet
	refreshWaiter             *pendingRefresh
}

// New validates opts and constructs a Session in the Idle state. Call
// Open to start its background task.
func New(opts Options) (*Session, error) {
	if opts.DeviceID == 0 {
		return nil, fmt.Errorf("session: device_id is required")
	}
	ip := net.ParseIP(opts.IP)
	if ip == nil {
		return nil, fmt.Errorf("session: invalid ip %q", opts.IP)
	}
	if opts.Port == 0 {
		opts.Port = discovery.DefaultControlPort
	}
	if opts.Protocol == 0 {
		opts.Protocol = protocol.DefaultVersion
	}
	if opts.Protocol != 2 && opts.Protocol != 3 {
		return nil, fmt.Errorf("session: unsupported protocol %d", opts.Protocol)
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("session: adapter is required")
	}

	var token, key []byte
	if opts.Protocol == 3 {
		var err error
		token, err = hex.DecodeString(opts.TokenHex)
		if err != nil || len(token) != 64 {
			return nil, fmt.Errorf("session: token must decode to 64 bytes of hex")
		}
		key, err = hex.DecodeString(opts.KeyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("session: key must decode to 32 bytes of hex")
		}
	}

	descriptor, err := discovery.NewDescriptor(opts.DeviceID, opts.Adapter.ApplianceType(), "", "", ip, opts.Port, opts.Protocol)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		opts:        opts,
		adapter:     opts.Adapter,
		token:       token,
		key:         key,
		logger:      logger,
		state:       StateIdle,
		descriptor:  descriptor,
		cmdCh:       make(chan *command, 32),
		closeCh:     make(chan struct{}),
		closedCh:    make(chan struct{}),
		unsupported: newUnsupportedSet(),
	}, nil
}

func (s *Session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the session's current lifecycle position.
func (s *Session) State() State { return s.getState() }

// Descriptor returns a copy of the session's current device descriptor.
func (s *Session) Descriptor() discovery.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

// Open idempotently starts the background task. It returns immediately.
func (s *Session) Open() {
	s.openOnce.Do(func() {
		s.setState(StateConnecting)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run()
		}()
	})
}

// Close idempotently signals shutdown, waits for the background task to
// tear down the socket and drain observers, then returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	<-s.closedCh
}

// RegisterObserver adds an observer invoked on every status update and
// availability change, in strict arrival order relative to other events.
func (s *Session) RegisterObserver(obs Observer) ObserverHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	handle := s.nextHandle
	s.observers = append(s.observers, observerEntry{handle: handle, fn: obs})
	return handle
}

// UnregisterObserver removes a previously registered observer.
func (s *Session) UnregisterObserver(handle ObserverHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.observers[:0]
	for _, e := range s.observers {
		if e.handle != handle {
			out = append(out, e)
		}
	}
	s.observers = out
}

func (s *Session) notifyObservers(status adapter.Status) {
	s.mu.Lock()
	entries := make([]observerEntry, len(s.observers))
	copy(entries, s.observers)
	s.mu.Unlock()
	for _, e := range entries {
		e.fn(status)
	}
}

// SetIP updates the descriptor's address; if it changed and the session
// is Ready, the background task tears down the socket and reconnects
// against the new address.
func (s *Session) SetIP(newIP string) error {
	ip := net.ParseIP(newIP)
	if ip == nil {
		return fmt.Errorf("session: invalid ip %q", newIP)
	}

	s.mu.Lock()
	changed := !s.descriptor.Address.Equal(ip)
	if changed {
		s.descriptor.Address = ip
	}
	ready := s.state == StateReady
	s.mu.Unlock()

	if changed && ready {
		select {
		case s.cmdCh <- &command{kind: cmdDropForReconnect}:
		case <-s.closedCh:
		}
	}
	return nil
}

// SendCommand builds an appliance message, wraps and frames it, and
// writes it to the socket. Fails with NotConnected unless the session is
// Ready.
func (s *Session) SendCommand(ctx context.Context, messageType protocol.MessageType, body []byte) error {
	if s.getState() != StateReady {
		return NewNotConnected()
	}
	result := make(chan error, 1)
	cmd := &command{kind: cmdSend, messageType: messageType, body: body, result: result}
	select {
	case s.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh:
		return NewNotConnected()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh:
		return NewNotConnected()
	}
}

// RefreshStatus emits one QUERY_APPLIANCE plus any appliance-specific
// queries the adapter requests, skipping commands already marked
// unsupported. If wait, it blocks up to 5s for any successful inbound
// response parse.
func (s *Session) RefreshStatus(ctx context.Context, wait bool) error {
	if s.getState() != StateReady {
		return NewNotConnected()
	}
	var result chan error
	if wait {
		result = make(chan error, 1)
	}
	cmd := &command{kind: cmdRefresh, wait: wait, result: result}
	select {
	case s.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh:
		return NewNotConnected()
	}
	if !wait {
		return nil
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh:
		return NewNotConnected()
	}
}

func (s *Session) descriptorSnapshot() discovery.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

func (s *Session) ctxWithClose(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.closeCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// run is the session's single background task: it alternates between
// connecting, authenticating, serving the Ready state, and backing off
// before reconnecting, until close() fires.
func (s *Session) run() {
	defer func() {
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.tcpKey = nil
		s.setState(StateClosed)
		s.notifyObservers(adapter.Status{"available": false})
		close(s.closedCh)
	}()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}
		switch s.getState() {
		case StateConnecting:
			s.doConnect()
		case StateReconnecting:
			s.doBackoff()
		case StateClosed:
			return
		default:
			// StateReady is only observed transiently; doConnect drives it.
			return
		}
	}
}

func (s *Session) doBackoff() {
	select {
	case <-s.closeCh:
	case <-time.After(5 * time.Second):
		s.setState(StateConnecting)
	}
}

func (s *Session) doConnect() {
	desc := s.descriptorSnapshot()

	ctx, cancel := s.ctxWithClose(context.Background())
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", desc.TCPAddr())
	dialCancel()
	cancel()
	if err != nil {
		s.logger.Warn("connect failed", zap.String("addr", desc.TCPAddr()), zap.Error(err))
		logging.LogConnection(desc.TCPAddr(), "dial_failed")
		s.notifyObservers(adapter.Status{"available": false})
		select {
		case <-s.closeCh:
		case <-time.After(5 * time.Second):
		}
		return
	}

	logging.LogConnection(desc.TCPAddr(), "dialed")
	s.conn = conn
	s.requestCounter = 0
	s.responseCounter = 0
	s.recvBuffer = nil

	if desc.ProtocolVersion == 3 {
		s.setState(StateAuthenticating)
		hctx, hcancel := s.ctxWithClose(context.Background())
		hctx, hcancel2 := context.WithTimeout(hctx, 10*time.Second)
		tcpKey, err := Handshake(hctx, conn, s.token, s.key)
		hcancel2()
		hcancel()
		if err != nil {
			s.logger.Error("handshake failed", zap.Uint64("device_id", desc.ID), zap.Error(err))
			_ = conn.Close()
			s.conn = nil
			s.notifyObservers(adapter.Status{"available": false})
			s.closeOnce.Do(func() { close(s.closeCh) })
			return
		}
		s.tcpKey = tcpKey
		s.requestCounter = 0
		s.responseCounter = 0
	}

	s.unsupported.reset()
	s.setState(StateReady)
	logging.LogConnection(desc.TCPAddr(), "ready")
	s.notifyObservers(adapter.Status{"available": true})
	s.runReady()
}

func (s *Session) dropAndReconnect() {
	addr := s.descriptorSnapshot().TCPAddr()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.tcpKey = nil
	s.recvBuffer = nil
	s.refreshWaiter = nil
	logging.LogConnection(addr, "dropped")
	s.notifyObservers(adapter.Status{"available": false})
	s.setState(StateReconnecting)
}

func (s *Session) runReady() {
	conn := s.conn
	done := make(chan struct{})
	readCh := make(chan []byte, 8)
	readErrCh := make(chan error, 1)
	go readLoop(conn, done, readCh, readErrCh)
	defer close(done)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	idleTicks := 0
	sinceRefresh := 0
	sinceHeartbeat := 0

	for {
		select {
		case <-s.closeCh:
			return

		case chunk := <-readCh:
			logging.LogRawBytes("session: raw socket read", chunk)
			s.recvBuffer = append(s.recvBuffer, chunk...)
			frames, leftover, err := protocol.DecodeFrames(s.recvBuffer, s.tcpKey)
			s.recvBuffer = leftover
			if err != nil {
				s.logger.Warn("outer frame error, dropping connection", zap.Error(err))
				s.dropAndReconnect()
				return
			}
			fatal := false
			for _, f := range frames {
				if f.IsErrorFrame {
					s.logger.Warn("received ERROR sentinel frame, dropping connection")
					fatal = true
					break
				}
				s.responseCounter = f.ResponseCounter
				if !s.handleApplianceFrame(f.Body) {
					fatal = true
					break
				}
			}
			if fatal {
				s.dropAndReconnect()
				return
			}
			if len(frames) > 0 {
				idleTicks = 0
			}

		case err := <-readErrCh:
			s.logger.Warn("socket read error, dropping connection", zap.Error(err))
			s.dropAndReconnect()
			return

		case cmd := <-s.cmdCh:
			if s.handleCommand(cmd) {
				s.dropAndReconnect()
				return
			}

		case <-ticker.C:
			idleTicks++
			sinceRefresh++
			sinceHeartbeat++

			s.checkRefreshTimeout()

			if idleTicks >= 120 {
				s.logger.Warn("heartbeat timeout: 120 consecutive idle ticks")
				s.dropAndReconnect()
				return
			}
			if sinceRefresh >= int(s.opts.RefreshInterval.Seconds()) {
				sinceRefresh = 0
				s.startRefresh(false, nil)
			}
			if sinceHeartbeat >= int(s.opts.HeartbeatInterval.Seconds()) {
				sinceHeartbeat = 0
				if err := s.sendHeartbeat(); err != nil {
					s.logger.Warn("heartbeat send failed, dropping connection", zap.Error(err))
					s.dropAndReconnect()
					return
				}
			}
		}
	}
}

func readLoop(conn net.Conn, done <-chan struct{}, out chan<- []byte, errc chan<- error) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case errc <- err:
			case <-done:
			}
			return
		}
	}
}

// handleApplianceFrame decodes one inner-packet payload recovered from an
// outer frame. It returns false when the failure is an integrity or
// framing violation that must drop the socket; adapter-level decode
// failures are logged and treated as non-fatal.
func (s *Session) handleApplianceFrame(frameBody []byte) bool {
	body, _, _, err := protocol.ParseInnerPacket(frameBody)
	if err != nil {
		s.logger.Warn("inner packet integrity error", zap.Error(err))
		return false
	}

	msg, err := protocol.ParseApplianceMessage(body)
	if err != nil {
		s.logger.Warn("appliance message integrity error", zap.Error(err))
		return false
	}

	s.resolveRefreshWaiter()

	if msg.IsQueryApplianceReply() {
		s.applianceProtocolVersion = msg.ProtocolVersion()
		return true
	}

	status, perr := s.adapter.ProcessMessage(msg.Body)
	if perr != nil {
		s.logger.Warn("adapter failed to process message", zap.Error(perr))
		return true
	}
	s.notifyObservers(status)
	return true
}

func (s *Session) resolveRefreshWaiter() {
	if s.refreshWaiter == nil {
		return
	}
	if s.refreshWaiter.result != nil {
		s.refreshWaiter.result <- nil
	}
	s.refreshWaiter = nil
}

func (s *Session) checkRefreshTimeout() {
	if s.refreshWaiter == nil || time.Now().Before(s.refreshWaiter.deadline) {
		return
	}
	for _, key := range s.refreshWaiter.keys {
		s.unsupported.mark(key)
	}
	if s.refreshWaiter.result != nil {
		s.refreshWaiter.result <- NewResponseTimeout("no reply within 5s")
	}
	s.refreshWaiter = nil
}

// handleCommand processes one dispatched command on the background task.
// It returns true when the connection must be dropped and reconnected.
func (s *Session) handleCommand(cmd *command) bool {
	switch cmd.kind {
	case cmdSend:
		desc := s.descriptorSnapshot()
		err := s.buildAndSend(desc.ApplianceType, cmd.messageType, cmd.body)
		if cmd.result != nil {
			cmd.result <- err
		}
		return err != nil
	case cmdRefresh:
		return s.startRefresh(cmd.wait, cmd.result)
	case cmdDropForReconnect:
		return true
	default:
		return false
	}
}

type refreshQuery struct {
	applianceType byte
	messageType   protocol.MessageType
	body          []byte
}

func (s *Session) refreshQueries() []refreshQuery {
	desc := s.descriptorSnapshot()
	queries := []refreshQuery{
		{applianceType: desc.ApplianceType, messageType: protocol.MessageTypeQueryAppliance, body: make([]byte, 19)},
	}
	for _, m := range s.adapter.BuildQueries() {
		queries = append(queries, refreshQuery{
			applianceType: m.ApplianceType,
			messageType:   protocol.MessageType(m.MessageType),
			body:          m.Body,
		})
	}
	return queries
}

func (s *Session) startRefresh(wait bool, result chan error) bool {
	var sentKeys []string
	for _, q := range s.refreshQueries() {
		key := commandKey(q.applianceType, byte(q.messageType), q.body)
		if s.unsupported.isUnsupported(key) {
			continue
		}
		if err := s.buildAndSend(q.applianceType, q.messageType, q.body); err != nil {
			if result != nil {
				result <- NewConnectError("send refresh query", err)
			}
			return true
		}
		sentKeys = append(sentKeys, key)
	}

	if len(sentKeys) == 0 {
		if result != nil {
			result <- NewRefreshFailed("all refresh queries are marked unsupported")
		}
		return false
	}

	if wait {
		s.refreshWaiter = &pendingRefresh{result: result, deadline: time.Now().Add(5 * time.Second), keys: sentKeys}
	} else if result != nil {
		result <- nil
	}
	return false
}

func (s *Session) sendInner(body []byte) error {
	inner, err := protocol.BuildInnerPacket(s.opts.DeviceID, body, false)
	if err != nil {
		return err
	}
	if s.descriptorSnapshot().ProtocolVersion == 3 {
		frame, err := protocol.EncodeFrame(inner, protocol.MsgTypeEncryptedRequest, s.tcpKey, &s.requestCounter)
		if err != nil {
			return err
		}
		logging.LogRawBytes("session: raw socket write", frame)
		_, err = s.conn.Write(frame)
		return err
	}
	logging.LogRawBytes("session: raw socket write", inner)
	_, err = s.conn.Write(inner)
	return err
}

func (s *Session) buildAndSend(applianceType byte, messageType protocol.MessageType, body []byte) error {
	appMsg := protocol.BuildApplianceMessage(applianceType, s.applianceProtocolVersion, messageType, body)
	return s.sendInner(appMsg)
}

func (s *Session) sendHeartbeat() error {
	return s.sendInner([]byte{0x00})
}
