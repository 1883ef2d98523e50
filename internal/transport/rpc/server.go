// Package rpc exposes the turn loop controls over JSON-RPC.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/service"
)

// ServiceName is the name methods are registered under, e.g. "Roundtable.SendMessage".
const ServiceName = "Roundtable"

const callTimeout = 30 * time.Second

// Server exposes RPC endpoints for operators and internal clients.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *zap.Logger
	ready     chan struct{}
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the service.
func NewServer(svc *service.Service, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	close(s.ready)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Sugar().Warnw("rpc accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Addr waits until the server is listening and returns its address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.ready:
	default:
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the RPC methods.
type Handler struct {
	service *service.Service
}

// SendMessageArgs posts a human message into a conversation.
type SendMessageArgs struct {
	ConversationID string                    `json:"conversation_id"`
	Request        domain.SendMessageRequest `json:"request"`
}

// ConversationArgs identifies a conversation.
type ConversationArgs struct {
	ConversationID string `json:"conversation_id"`
}

// StateResponse reports a loop state.
type StateResponse struct {
	ConversationID string           `json:"conversation_id"`
	LoopState      domain.LoopState `json:"loop_state"`
}

// DecideProposalArgs approves or denies a role proposal.
type DecideProposalArgs struct {
	ProposalID string `json:"proposal_id"`
	Decision   string `json:"decision"`
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

// SendMessage stores a human message and starts the turn loop.
func (h *Handler) SendMessage(req *SendMessageArgs, resp *domain.SendMessageResponse) error {
	if req == nil || req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	ctx, cancel := callContext()
	defer cancel()

	result, err := h.service.SendMessage(ctx, req.ConversationID, req.Request)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// Stop halts a conversation's turn loop.
func (h *Handler) Stop(req *ConversationArgs, resp *StateResponse) error {
	if req == nil || req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	ctx, cancel := callContext()
	defer cancel()

	state, err := h.service.StopConversation(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	resp.ConversationID = req.ConversationID
	resp.LoopState = state
	return nil
}

// State reports a conversation's loop state.
func (h *Handler) State(req *ConversationArgs, resp *StateResponse) error {
	if req == nil || req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	ctx, cancel := callContext()
	defer cancel()

	state, err := h.service.LoopState(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	resp.ConversationID = req.ConversationID
	resp.LoopState = state
	return nil
}

// DecideProposal approves or denies a pending role proposal.
func (h *Handler) DecideProposal(req *DecideProposalArgs, resp *domain.RoleProposal) error {
	if req == nil || req.ProposalID == "" {
		return errors.New("proposal_id is required")
	}
	ctx, cancel := callContext()
	defer cancel()

	proposal, err := h.service.DecideProposal(ctx, req.ProposalID, domain.ProposalDecisionRequest{Decision: req.Decision})
	if err != nil {
		return err
	}
	*resp = *proposal
	return nil
}

// GetCanvas returns a conversation's code canvas.
func (h *Handler) GetCanvas(req *ConversationArgs, resp *domain.CodeCanvas) error {
	if req == nil || req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	ctx, cancel := callContext()
	defer cancel()

	canvas, err := h.service.GetCanvas(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	*resp = *canvas
	return nil
}
