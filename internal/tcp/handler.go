package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/middleware"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/protocol"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// Handler executes client commands against the registry and match engine
type Handler struct {
	registry *registry.Registry
	engine   match.Engine
	logger   *slog.Logger
}

var _ Processor = (*Handler)(nil)

// NewHandler creates a new Handler
func NewHandler(registry *registry.Registry, engine match.Engine, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		engine:   engine,
		logger:   logger.With(slog.String("component", "handler")),
	}
}

// Process handles one request. Domain failures become response codes; a
// panic is answered with INTERNAL_ERROR.
func (h *Handler) Process(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			middleware.LogPanic(h.logger, "panic while processing request", r,
				slog.String("conn_id", req.ConnID),
			)
			resp = codeResponse(protocol.CodeInternalError)
		}
	}()

	if req.Err != nil {
		return h.failure(req, req.Err)
	}
	parsed, err := protocol.ParseTCP(req.Line)
	if err != nil {
		return h.failure(req, err)
	}

	resp, err = h.dispatch(ctx, req, parsed)
	if err != nil {
		return h.failure(req, err)
	}
	return resp
}

// Disconnected logs out a user whose connection went away, unless the user
// has since logged in again from another connection
func (h *Handler) Disconnected(ctx context.Context, user, connID string) {
	ended, err := h.registry.EndSession(ctx, user, connID)
	if err != nil {
		h.logger.Warn("logout on disconnect failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ended {
		h.logger.Debug("session already ended",
			slog.String("user", user),
			slog.String("conn_id", connID),
		)
	}
}

func (h *Handler) dispatch(ctx context.Context, req Request, r protocol.Request) (Response, error) {
	switch r.Command {
	case protocol.CmdLogin:
		return h.login(ctx, req, r.Args)

	case protocol.CmdLogout:
		if err := h.registry.Logout(ctx, r.Args[0]); err != nil {
			return Response{}, err
		}
		return Response{Payload: []byte(protocol.CodeOK), LoggedOut: r.Args[0]}, nil

	case protocol.CmdAddFriend:
		if err := h.registry.AddFriendship(ctx, r.Args[0], r.Args[1]); err != nil {
			return Response{}, err
		}
		return codeResponse(protocol.CodeOK), nil

	case protocol.CmdFriendList:
		friends, err := h.registry.FriendsOf(ctx, r.Args[0])
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(friends)

	case protocol.CmdScore:
		score, err := h.registry.ScoreOf(ctx, r.Args[0])
		if err != nil {
			return Response{}, err
		}
		return textResponse(strconv.Itoa(score)), nil

	case protocol.CmdRankings:
		ranking, err := h.registry.RankingOf(ctx, r.Args[0])
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(ranking)

	case protocol.CmdNextWord:
		id, err := protocol.ParseMatchID(r.Args[0])
		if err != nil {
			return Response{}, err
		}
		return h.nextWord(ctx, id, r.Args[1], r.Args[2])

	case protocol.CmdReadyForChallenge:
		id, err := protocol.ParseMatchID(r.Args[0])
		if err != nil {
			return Response{}, err
		}
		return h.issueWord(ctx, id, r.Args[1], "")
	}
	return Response{}, model.ErrUnknownCommand
}

func (h *Handler) login(ctx context.Context, req Request, args []string) (Response, error) {
	name, password := args[0], args[1]
	if req.User != "" {
		return Response{}, model.ErrAlreadyLogged
	}

	port := h.registry.Config().DefaultUDPPort
	if len(args) == 3 {
		p, err := protocol.ParsePort(args[2])
		if err != nil {
			return Response{}, err
		}
		port = p
	}
	if err := h.registry.LoginSession(ctx, req.ConnID, name, password, req.Remote.Addr(), port); err != nil {
		return Response{}, err
	}
	return Response{Payload: []byte(protocol.CodeOK), LoggedIn: name}, nil
}

// nextWord checks the submitted translation and, in the same response,
// issues the following word
func (h *Handler) nextWord(ctx context.Context, id model.MatchID, player, submitted string) (Response, error) {
	canonical, err := h.engine.CheckTranslation(ctx, id, player, submitted)
	if err != nil {
		return h.matchOver(ctx, id, "", err)
	}
	correct := strings.EqualFold(strings.TrimSpace(submitted), canonical)
	return h.issueWord(ctx, id, player, protocol.VerdictLine(correct, id, submitted, canonical))
}

// issueWord appends the player's next word to the accumulated response
func (h *Handler) issueWord(ctx context.Context, id model.MatchID, player, accumulated string) (Response, error) {
	word, err := h.engine.NextWord(ctx, id, player)
	if err != nil {
		return h.matchOver(ctx, id, accumulated, err)
	}
	return textResponse(joinLines(accumulated, protocol.WordLine(id, word))), nil
}

// matchOver turns a timeout or end of match into a recap response. Other
// errors pass through.
func (h *Handler) matchOver(ctx context.Context, id model.MatchID, accumulated string, err error) (Response, error) {
	if !errors.Is(err, model.ErrGameTimeout) && !errors.Is(err, model.ErrEndOfMatch) {
		return Response{}, err
	}
	recap, rerr := h.engine.Recap(ctx, id)
	if rerr != nil {
		return Response{}, rerr
	}
	return textResponse(joinLines(accumulated, protocol.WithRecap(protocol.CodeFor(err), recap))), nil
}

func (h *Handler) failure(req Request, err error) Response {
	code := protocol.CodeFor(err)
	if code == protocol.CodeInternalError {
		h.logger.Error("request failed",
			slog.String("conn_id", req.ConnID),
			slog.String("request", req.Line),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Debug("request rejected",
			slog.String("conn_id", req.ConnID),
			slog.String("code", string(code)),
		)
	}
	return codeResponse(code)
}

func joinLines(accumulated, line string) string {
	if accumulated == "" {
		return line
	}
	return accumulated + "\n" + line
}

func codeResponse(code protocol.Code) Response {
	return Response{Payload: []byte(code)}
}

func textResponse(text string) Response {
	return Response{Payload: []byte(text)}
}

func jsonResponse(v any) (Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: data}, nil
}
