package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

// tokenJSON is the wire form of a TokenRecord. Supplies travel as decimal
// strings since uint256 overflows JSON numbers.
type tokenJSON struct {
	Index        *uint64 `json:"index,omitempty"`
	TokenAddress string  `json:"tokenAddress"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Creator      string  `json:"creator"`
	TotalSupply  string  `json:"totalSupply"`
}

func toJSON(rec registry.TokenRecord) tokenJSON {
	supply := "0"
	if rec.TotalSupply != nil {
		supply = rec.TotalSupply.String()
	}
	return tokenJSON{
		TokenAddress: rec.TokenAddress.Hex(),
		Name:         rec.Name,
		Symbol:       rec.Symbol,
		Creator:      rec.Creator.Hex(),
		TotalSupply:  supply,
	}
}

func toJSONList(recs []registry.TokenRecord) []tokenJSON {
	out := make([]tokenJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, toJSON(r))
	}
	return out
}

type createRequest struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Supply  string `json:"supply"`
	Creator string `json:"creator"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:      code,
		Message:   msg,
		RequestID: getRequestID(c),
	}})
}

// classify maps a registry error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, registry.ErrInvalidSymbol):
		return http.StatusBadRequest, "invalid_symbol"
	case errors.Is(err, registry.ErrInvalidSupply):
		return http.StatusBadRequest, "invalid_supply"
	case errors.Is(err, registry.ErrIndexOutOfRange):
		return http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, registry.ErrFinalization):
		return http.StatusBadGateway, "finalization_failed"
	case errors.Is(err, registry.ErrSubmission):
		return http.StatusServiceUnavailable, "submission_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("request_id", getRequestID(c)), zap.Error(err))
	}
	_ = c.Error(err)
	abortWithError(c, status, code, registry.UserMessage(err))
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *Server) listTokens(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		recs []registry.TokenRecord
		err  error
	)
	if creator := c.Query("creator"); creator != "" {
		if !common.IsHexAddress(creator) {
			abortWithError(c, http.StatusBadRequest, "invalid_creator", "creator must be a 0x-prefixed address")
			return
		}
		recs, err = s.reg.TokensByCreator(ctx, common.HexToAddress(creator))
	} else {
		recs, err = s.reg.AllTokens(ctx)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": toJSONList(recs), "count": len(recs)})
}

func (s *Server) tokenCount(c *gin.Context) {
	n, err := s.reg.TokenCount(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) getToken(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	rec, err := s.reg.Token(c.Request.Context(), index)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := toJSON(*rec)
	out.Index = &index
	c.JSON(http.StatusOK, out)
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	n, err := s.reg.TokenCount(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "backend": s.backend, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.backend, "tokens": n})
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func (s *Server) createToken(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	if !common.IsHexAddress(body.Creator) {
		abortWithError(c, http.StatusBadRequest, "invalid_creator", "creator must be a 0x-prefixed address")
		return
	}
	supply, err := registry.ParseSupply(body.Supply)
	if err != nil {
		s.fail(c, err)
		return
	}
	req := registry.Request{
		Creator: common.HexToAddress(body.Creator),
		Name:    body.Name,
		Symbol:  body.Symbol,
		Supply:  supply,
	}.Normalize()
	if err := req.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	if err := registry.CheckSymbolLength(req.Symbol); err != nil {
		s.fail(c, err)
		return
	}

	// A client hanging up after submission must not abandon the creation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.timeout)
	defer cancel()
	rec, err := s.reg.CreateToken(ctx, req.Creator, req.Name, req.Symbol, nonZero(req.Supply))
	if err != nil {
		s.fail(c, err)
		return
	}
	n := s.counter.Bump()
	s.log.Info("token created via api",
		zap.String("request_id", getRequestID(c)),
		zap.String("token", rec.TokenAddress.Hex()),
		zap.String("symbol", rec.Symbol),
		zap.Uint64("refresh", n),
	)
	c.JSON(http.StatusCreated, toJSON(*rec))
}

// nonZero hands the registry nil for a zero supply so the default applies.
func nonZero(v *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	return v
}
