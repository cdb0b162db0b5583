// Package transport implements the peer transport boundary spec.md §6
// names as consumed: send_votes, send_batches, request_proposal,
// retrieve_block, retrieve_blocks. Wire framing follows the teacher's
// internal/p2p package (length-prefixed gob payloads over TCP); the
// message-type enum and Server Start/Stop/accept-loop shape are adapted
// from internal/p2p/server.go and internal/p2p/message.go.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/types"
)

var (
	ErrPeerNotFound      = errors.New("peer not connected")
	ErrRequestTimedOut   = errors.New("request timed out")
	ErrMessageTooLarge   = errors.New("incoming message exceeds the maximum frame size")
	ErrServerAlreadyRunning = errors.New("transport server is already running")
	ErrServerNotRunning  = errors.New("transport server is not running")
)

// maxFrameSize bounds a single gob-framed message, guarding against a
// malformed length prefix causing an unbounded allocation.
const maxFrameSize = 64 << 20

// messageKind tags the payload carried by a frame.
type messageKind byte

const (
	kindVotes messageKind = iota
	kindBatches
	kindProposalRequest
	kindProposalResponse
	kindBlockRequest
	kindBlockResponse
	kindBlockStreamRequest
	kindBlockStreamChunk
)

// frame is the wire envelope: a kind tag plus a gob-encoded payload
// specific to that kind.
type frame struct {
	Kind    messageKind
	Payload []byte
}

type votesPayload struct {
	Votes []types.Vote
}

type batchesPayload struct {
	Batches []types.Batch
}

type proposalRequestPayload struct {
	Round types.Round
}

type proposalResponsePayload struct {
	Proposal *types.Proposal // nil means "no proposal available"
}

type blockRequestPayload struct {
	Height uint64
}

type blockResponsePayload struct {
	Block *types.Block // nil means "not found"
}

type blockStreamRequestPayload struct {
	FromHeight uint64
}

type blockStreamChunkPayload struct {
	Block *types.Block
	Done  bool // true marks end of stream
}

// Handler receives inbound messages a Server has decoded; each method
// returning a non-nil response causes that response to be written back to
// the peer the request arrived from.
type Handler interface {
	OnVotes(from types.PublicKey, votes []types.Vote)
	OnBatches(from types.PublicKey, batches []types.Batch)
	OnProposalRequest(from types.PublicKey, round types.Round) *types.Proposal
	OnBlockRequest(from types.PublicKey, height uint64) *types.Block
	OnBlockStreamRequest(from types.PublicKey, fromHeight uint64) <-chan *types.Block
}

// Peer is the outbound-facing client half of the transport boundary,
// matching spec.md §6's "Peer transport (consumed)" contract.
type Peer interface {
	SendVotes(ctx context.Context, votes []types.Vote) error
	SendBatches(ctx context.Context, batches []types.Batch) error
	RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error)
	RetrieveBlock(ctx context.Context, height uint64) (*types.Block, error)
	RetrieveBlocks(ctx context.Context, fromHeight uint64) (<-chan *types.Block, error)
}

// Dialer resolves a types.Peer address into a connected Peer.
type Dialer interface {
	Dial(ctx context.Context, p types.Peer) (Peer, error)
}

func encodeFrame(w io.Writer, kind messageKind, payload interface{}) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode %v payload: %w", kind, err)
	}
	f := frame{Kind: kind, Payload: buf.Bytes()}
	var fbuf bytes.Buffer
	if err := gob.NewEncoder(&fbuf).Encode(f); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(fbuf.Len()))
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := bw.Write(fbuf.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return bw.Flush()
}

func decodeFrame(r io.Reader) (frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return frame{}, ErrMessageTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, fmt.Errorf("read frame body: %w", err)
	}
	var f frame
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Server accepts inbound TCP connections framed as in encodeFrame/
// decodeFrame and dispatches decoded messages to a Handler, following the
// Start/Stop/acceptLoop shape of internal/p2p/server.go.
type Server struct {
	listenAddr string
	handler    Handler
	log        *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer creates a Server bound to listenAddr once Start is called.
func NewServer(listenAddr string, handler Handler, log *zap.SugaredLogger) *Server {
	return &Server{listenAddr: listenAddr, handler: handler, log: log.Named("transport")}
}

// Start begins listening and accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", s.listenAddr, err)
	}
	s.listener = ln
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Infow("transport server listening", "address", ln.Addr().String())
	return nil
}

// Stop closes the listener and waits for in-flight connection handlers to
// return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrServerNotRunning
	}
	close(s.quit)
	err := s.listener.Close()
	s.listener = nil
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warnw("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	for {
		f, err := decodeFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.log.Debugw("connection read error", "error", err)
			}
			return
		}
		if f.Kind == kindBlockStreamRequest {
			var p blockStreamRequestPayload
			if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&p); err != nil {
				s.log.Warnw("decode block stream request", "error", err)
				continue
			}
			if err := s.streamBlocks(conn, p.FromHeight); err != nil {
				s.log.Warnw("stream blocks", "error", err)
				return
			}
			continue
		}
		resp, err := s.dispatch(f)
		if err != nil {
			s.log.Warnw("dispatch error", "kind", f.Kind, "error", err)
			continue
		}
		if resp != nil {
			if err := encodeFrame(conn, resp.Kind, resp.Payload); err != nil {
				s.log.Warnw("write response error", "error", err)
				return
			}
		}
	}
}

// streamBlocks drains the handler's block channel onto the wire as a
// sequence of chunk frames terminated by a Done chunk.
func (s *Server) streamBlocks(conn net.Conn, fromHeight uint64) error {
	blocks := s.handler.OnBlockStreamRequest(types.PublicKey{}, fromHeight)
	for block := range blocks {
		if err := encodeFrame(conn, kindBlockStreamChunk, blockStreamChunkPayload{Block: block}); err != nil {
			return err
		}
	}
	return encodeFrame(conn, kindBlockStreamChunk, blockStreamChunkPayload{Done: true})
}

type outbound struct {
	Kind    messageKind
	Payload interface{}
}

func (s *Server) dispatch(f frame) (*outbound, error) {
	switch f.Kind {
	case kindVotes:
		var p votesPayload
		if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&p); err != nil {
			return nil, err
		}
		s.handler.OnVotes(types.PublicKey{}, p.Votes)
		return nil, nil
	case kindBatches:
		var p batchesPayload
		if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&p); err != nil {
			return nil, err
		}
		s.handler.OnBatches(types.PublicKey{}, p.Batches)
		return nil, nil
	case kindProposalRequest:
		var p proposalRequestPayload
		if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&p); err != nil {
			return nil, err
		}
		proposal := s.handler.OnProposalRequest(types.PublicKey{}, p.Round)
		return &outbound{Kind: kindProposalResponse, Payload: proposalResponsePayload{Proposal: proposal}}, nil
	case kindBlockRequest:
		var p blockRequestPayload
		if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&p); err != nil {
			return nil, err
		}
		block := s.handler.OnBlockRequest(types.PublicKey{}, p.Height)
		return &outbound{Kind: kindBlockResponse, Payload: blockResponsePayload{Block: block}}, nil
	default:
		return nil, fmt.Errorf("unsupported frame kind %v for one-shot dispatch", f.Kind)
	}
}

// TCPDialer connects to peers over TCP using the same framing as Server.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial opens a connection to p.Address and returns a Peer bound to it.
func (d *TCPDialer) Dial(ctx context.Context, p types.Peer) (Peer, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return nil, fmt.Errorf("dial peer %s: %w", p.Address, err)
	}
	return &tcpPeer{conn: conn}, nil
}

type tcpPeer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (p *tcpPeer) SendVotes(ctx context.Context, votes []types.Vote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return encodeFrame(p.conn, kindVotes, votesPayload{Votes: votes})
}

func (p *tcpPeer) SendBatches(ctx context.Context, batches []types.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return encodeFrame(p.conn, kindBatches, batchesPayload{Batches: batches})
}

func (p *tcpPeer) RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		p.conn.SetDeadline(deadline)
		defer p.conn.SetDeadline(time.Time{})
	}
	if err := encodeFrame(p.conn, kindProposalRequest, proposalRequestPayload{Round: round}); err != nil {
		return nil, err
	}
	f, err := decodeFrame(p.conn)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrRequestTimedOut
		}
		return nil, err
	}
	var resp proposalResponsePayload
	if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&resp); err != nil {
		return nil, err
	}
	return resp.Proposal, nil
}

func (p *tcpPeer) RetrieveBlock(ctx context.Context, height uint64) (*types.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		p.conn.SetDeadline(deadline)
		defer p.conn.SetDeadline(time.Time{})
	}
	if err := encodeFrame(p.conn, kindBlockRequest, blockRequestPayload{Height: height}); err != nil {
		return nil, err
	}
	f, err := decodeFrame(p.conn)
	if err != nil {
		return nil, err
	}
	var resp blockResponsePayload
	if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&resp); err != nil {
		return nil, err
	}
	return resp.Block, nil
}

func (p *tcpPeer) RetrieveBlocks(ctx context.Context, fromHeight uint64) (<-chan *types.Block, error) {
	p.mu.Lock()
	if err := encodeFrame(p.conn, kindBlockStreamRequest, blockStreamRequestPayload{FromHeight: fromHeight}); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	out := make(chan *types.Block, 8)
	go func() {
		defer close(out)
		defer p.mu.Unlock()
		for {
			f, err := decodeFrame(p.conn)
			if err != nil {
				return
			}
			var chunk blockStreamChunkPayload
			if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(&chunk); err != nil {
				return
			}
			if chunk.Done {
				return
			}
			select {
			case out <- chunk.Block:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *tcpPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}
