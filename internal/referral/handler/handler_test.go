package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"referralintake/internal/platform/token"
	providerModels "referralintake/internal/provider/models"
	providerStore "referralintake/internal/provider/store"
	"referralintake/internal/referral/service"
	referralStore "referralintake/internal/referral/store"
)

// The handler suite drives the full router with a real service over in-memory
// stores, so it covers routing, decoding and error translation together.
type ReferralHandlerSuite struct {
	suite.Suite
	router   chi.Router
	tokens   *token.Service
	provider *providerModels.Provider
}

func TestReferralHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReferralHandlerSuite))
}

func (s *ReferralHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	referrals := referralStore.NewInMemory()
	providers := providerStore.NewInMemory()

	var err error
	s.provider, err = providerModels.NewProvider("Fern Health", true, true, true, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(providers.Save(context.Background(), s.provider))

	svc, err := service.New(referrals, providers, service.WithLogger(logger))
	s.Require().NoError(err)

	s.tokens = token.NewService("test-signing-key", "referral-intake", 30*time.Minute)

	s.router = chi.NewRouter()
	New(svc, logger, s.tokens).Register(s.router)
}

func (s *ReferralHandlerSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ReferralHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *ReferralHandlerSuite) createReferral(nhsNumber, email string) string {
	w := s.do(http.MethodPost, "/referrals/self", map[string]string{
		"nhs_number": nhsNumber,
		"email":      email,
	}, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.decode(w)["id"].(string)
}

func (s *ReferralHandlerSuite) TestCreate() {
	s.Run("creates via a public channel", func() {
		w := s.do(http.MethodPost, "/referrals/pharmacy", map[string]string{
			"nhs_number": "1000000001",
			"email":      "ph@example.com",
		}, nil)
		s.Equal(http.StatusCreated, w.Code)
		resp := s.decode(w)
		s.Equal("Pharmacy", resp["source"])
		s.Equal("New", resp["status"])
	})

	s.Run("unknown channel is a 400", func() {
		w := s.do(http.MethodPost, "/referrals/fax", map[string]string{
			"nhs_number": "1000000002",
			"email":      "fax@example.com",
		}, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("duplicate nhs number is a 409 with the conflicting ubrn", func() {
		w := s.do(http.MethodPost, "/referrals/gp", map[string]string{
			"nhs_number": "1000000003",
			"email":      "gp1@example.com",
			"ubrn":       "000000000042",
		}, nil)
		s.Require().Equal(http.StatusCreated, w.Code)

		w = s.do(http.MethodPost, "/referrals/self", map[string]string{
			"nhs_number": "1000000003",
			"email":      "other@example.com",
		}, nil)
		s.Equal(http.StatusConflict, w.Code)
		resp := s.decode(w)
		s.Equal("nhs_number_blocked", resp["error"])
		s.Equal("000000000042", resp["conflicting_ubrn"])
	})
}

func (s *ReferralHandlerSuite) TestStaffChannel() {
	s.Run("without a token is a 401", func() {
		w := s.do(http.MethodPost, "/referrals/staff", map[string]string{
			"nhs_number": "2000000001",
		}, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("with a token the verified email wins over the body", func() {
		staffToken, err := s.tokens.MintStaffToken(context.Background(), "verified@nhs.example.com")
		s.Require().NoError(err)

		w := s.do(http.MethodPost, "/referrals/staff", map[string]string{
			"nhs_number": "2000000002",
			"email":      "spoofed@example.com",
		}, map[string]string{"Authorization": "Bearer " + staffToken})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
		resp := s.decode(w)
		s.Equal("StaffReferral", resp["source"])
		s.Equal("verified@nhs.example.com", resp["email"])
	})

	s.Run("garbage token is a 401", func() {
		w := s.do(http.MethodPost, "/referrals/staff", map[string]string{
			"nhs_number": "2000000003",
		}, map[string]string{"Authorization": "Bearer not-a-token"})
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *ReferralHandlerSuite) TestLifecycleEndpoints() {
	id := s.createReferral("3000000001", "life@example.com")

	s.Run("triage then provider selection", func() {
		w := s.do(http.MethodPost, "/referrals/"+id+"/triage", map[string]string{
			"completion_level": "Medium",
			"weighted_level":   "High",
		}, nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		w = s.do(http.MethodGet, "/referrals/"+id+"/providers", nil, nil)
		s.Require().Equal(http.StatusOK, w.Code)

		w = s.do(http.MethodPost, "/referrals/"+id+"/provider", map[string]string{
			"provider_id": s.provider.ID.String(),
		}, nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		resp := s.decode(w)
		s.Equal(s.provider.ID.String(), resp["provider_id"])
		s.NotEmpty(resp["date_of_provider_selection"])
	})

	s.Run("second selection is a 409", func() {
		w := s.do(http.MethodPost, "/referrals/"+id+"/provider", map[string]string{
			"provider_id": s.provider.ID.String(),
		}, nil)
		s.Equal(http.StatusConflict, w.Code)
		s.Equal("provider_already_selected", s.decode(w)["error"])
	})

	s.Run("status transition", func() {
		w := s.do(http.MethodPost, "/referrals/"+id+"/status", map[string]string{
			"status": "ProviderAccepted",
		}, nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		s.Equal("ProviderAccepted", s.decode(w)["status"])
	})

	s.Run("illegal transition is a 409", func() {
		w := s.do(http.MethodPost, "/referrals/"+id+"/status", map[string]string{
			"status": "Complete",
		}, nil)
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("unknown status is a 400", func() {
		w := s.do(http.MethodPost, "/referrals/"+id+"/status", map[string]string{
			"status": "Paused",
		}, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("get returns the current record", func() {
		w := s.do(http.MethodGet, "/referrals/"+id, nil, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal("ProviderAccepted", s.decode(w)["status"])
	})

	s.Run("unknown id is a 404", func() {
		w := s.do(http.MethodGet, "/referrals/00000000-0000-0000-0000-000000000001", nil, nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("malformed id is a 400", func() {
		w := s.do(http.MethodGet, "/referrals/not-a-uuid", nil, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ReferralHandlerSuite) TestReuseEndpoint() {
	s.createReferral("4000000001", "reuse@example.com")

	s.Run("blocked nhs number", func() {
		w := s.do(http.MethodGet, "/referrals/reuse?nhs_number=4000000001", nil, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.Equal("Blocked", resp["outcome"])
		s.Equal("in-progress referral", resp["reason"])
	})

	s.Run("available email", func() {
		w := s.do(http.MethodGet, "/referrals/reuse?email=fresh@example.com", nil, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal("Available", s.decode(w)["outcome"])
	})

	s.Run("both identities at once is a 400", func() {
		w := s.do(http.MethodGet, "/referrals/reuse?nhs_number=1&email=a@b.c", nil, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("neither identity is a 400", func() {
		w := s.do(http.MethodGet, "/referrals/reuse", nil, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
