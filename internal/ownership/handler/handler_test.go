package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rightsledger/internal/ownership/conflict"
	"rightsledger/internal/ownership/handler/mocks"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/platform/middleware"
	dErrors "rightsledger/pkg/domain-errors"
	"rightsledger/pkg/requestcontext"
	"rightsledger/pkg/testutil"
)

// tokenIsUser accepts any bearer token and treats it as the user ID.
type tokenIsUser struct{}

func (tokenIsUser) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "bad" {
		return nil, errors.New("signature mismatch")
	}
	return &middleware.JWTClaims{UserID: token, SessionID: "sess-" + token}, nil
}

type HandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	detector *mocks.MockDetector
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.detector = mocks.NewMockDetector(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, s.detector, logger, nil, tokenIsUser{}, time.Second)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(method, path, user string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if user != "" {
		req = testutil.WithBearer(req, user)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) decodeError(rr *httptest.ResponseRecorder) map[string]any {
	return testutil.UnmarshalErrorResponse(s.T(), rr)
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	s.Run("missing token", func() {
		rr := s.do(http.MethodGet, "/v1/records/rec-1", "", nil)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
	s.Run("invalid token", func() {
		rr := s.do(http.MethodGet, "/v1/records/rec-1", "bad", nil)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}

func (s *HandlerSuite) TestCreateRecord() {
	s.service.EXPECT().CreateOwnershipRecord(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cmd models.CreateRecordCommand) (*models.OwnershipRecord, error) {
			s.Equal(models.Subject{Type: models.SubjectTrack, ID: "trk-1"}, cmd.Subject)
			s.Equal(models.RightsMaster, cmd.RightsCategory)
			s.True(cmd.Percentage.Equal(decimal.RequireFromString("0.6")))
			s.Equal("label-1", requestcontext.UserID(ctx))
			s.False(requestcontext.Now(ctx).IsZero())
			return &models.OwnershipRecord{ID: "rec-1", Subject: cmd.Subject, RightsCategory: cmd.RightsCategory,
				OwnerID: cmd.OwnerID, Percentage: cmd.Percentage, Status: models.RecordActive}, nil
		})

	rr := s.do(http.MethodPost, "/v1/records", "label-1", map[string]any{
		"subject_type":    "track",
		"subject_id":      "trk-1",
		"rights_category": "Master",
		"owner_id":        "label-1",
		"percentage":      "0.6",
	})

	s.Equal(http.StatusCreated, rr.Code)
	s.Equal("application/json", rr.Header().Get("Content-Type"))
	s.NotEmpty(rr.Header().Get(middleware.RequestIDHeader))
	rec := testutil.UnmarshalResponse[models.OwnershipRecord](s.T(), rr)
	s.Equal("rec-1", rec.ID)
	s.Equal(models.RecordActive, rec.Status)
}

func (s *HandlerSuite) TestCreateRecordMalformedBody() {
	rr := s.do(http.MethodPost, "/v1/records", "label-1", "{not json")

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestDomainErrorsMapToStatus() {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "total would exceed 100%"), http.StatusUnprocessableEntity, "validation"},
		{"not found", dErrors.New(dErrors.CodeNotFound, "record not found"), http.StatusNotFound, "not_found"},
		{"invalid state", dErrors.New(dErrors.CodeInvalidState, "transfer is EXECUTED"), http.StatusConflict, "invalid_state"},
		{"concurrency", dErrors.New(dErrors.CodeConcurrency, "lock timeout"), http.StatusConflict, "concurrency"},
		{"invalid transfer", dErrors.New(dErrors.CodeInvalidTransferRequest, "exceeds source"), http.StatusBadRequest, "invalid_transfer_request"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().ExecuteTransfer(gomock.Any(), "tr-1").Return(nil, tc.err)

			rr := s.do(http.MethodPost, "/v1/transfers/tr-1/execute", "label-1", nil)

			testutil.AssertStatusAndError(s.T(), rr, tc.status, tc.code)
		})
	}
}

func (s *HandlerSuite) TestConcurrencyErrorIsRetryable() {
	s.service.EXPECT().ExecuteTransfer(gomock.Any(), "tr-1").
		Return(nil, dErrors.New(dErrors.CodeConcurrency, "lock timeout"))

	rr := s.do(http.MethodPost, "/v1/transfers/tr-1/execute", "label-1", nil)

	s.Equal(true, s.decodeError(rr)["retryable"])
}

func (s *HandlerSuite) TestInternalErrorsAreMasked() {
	s.service.EXPECT().GetRecord(gomock.Any(), "rec-1").
		Return(nil, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load record"))

	rr := s.do(http.MethodGet, "/v1/records/rec-1", "label-1", nil)

	s.Equal(http.StatusInternalServerError, rr.Code)
	s.NotContains(rr.Body.String(), "pq:")
	s.Equal("internal server error", s.decodeError(rr)["error_description"])
}

func (s *HandlerSuite) TestProposeTransferUsesCallerAsTransferor() {
	s.service.EXPECT().ProposeTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd models.ProposeTransferCommand) (*models.OwnershipTransfer, error) {
			s.Equal("label-1", cmd.TransferorID)
			s.Equal("pub-9", cmd.TransfereeID)
			s.Equal(models.TransferAssignment, cmd.Type)
			return &models.OwnershipTransfer{ID: "tr-1", Status: models.TransferPending}, nil
		})

	rr := s.do(http.MethodPost, "/v1/transfers", "label-1", map[string]any{
		"source_record_id": "rec-1",
		"transferee_id":    "pub-9",
		"transfer_type":    "assignment",
		"percentage":       "0.3",
		"transferor_id":    "someone-else",
	})

	s.Equal(http.StatusCreated, rr.Code)
}

func (s *HandlerSuite) TestTransferLifecycleRoutes() {
	s.service.EXPECT().GetTransfer(gomock.Any(), "tr-1").Return(&models.OwnershipTransfer{ID: "tr-1"}, nil)
	s.service.EXPECT().CancelTransfer(gomock.Any(), "tr-1").Return(&models.OwnershipTransfer{ID: "tr-1", Status: models.TransferCancelled}, nil)
	s.service.EXPECT().DisputeTransfer(gomock.Any(), "tr-2", "signature forged").Return(&models.OwnershipTransfer{ID: "tr-2", Status: models.TransferDisputed}, nil)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/transfers/tr-1", "label-1", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/transfers/tr-1/cancel", "label-1", nil).Code)
	rr := s.do(http.MethodPost, "/v1/transfers/tr-2/dispute", "label-1", DisputeTransferRequest{Reason: "signature forged"})
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"DISPUTED"`)
}

func (s *HandlerSuite) TestRecordRoutes() {
	pct := decimal.RequireFromString("0.5")
	s.service.EXPECT().UpdateOwnershipRecord(gomock.Any(), "rec-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, cmd models.UpdateRecordCommand) (*models.OwnershipRecord, error) {
			s.Require().NotNil(cmd.Percentage)
			s.True(cmd.Percentage.Equal(pct))
			s.Nil(cmd.Status)
			return &models.OwnershipRecord{ID: "rec-1", Percentage: pct}, nil
		})
	s.service.EXPECT().ActivateRecord(gomock.Any(), "rec-2").Return(&models.OwnershipRecord{ID: "rec-2", Status: models.RecordActive}, nil)

	s.Equal(http.StatusOK, s.do(http.MethodPatch, "/v1/records/rec-1", "label-1", map[string]any{"percentage": "0.5"}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/records/rec-2/activate", "label-1", nil).Code)
}

func (s *HandlerSuite) TestQueryOwnership() {
	subject := models.Subject{Type: models.SubjectAlbum, ID: "alb-7"}
	s.service.EXPECT().QueryOwnership(gomock.Any(), subject, models.RightsPublishing).
		Return(&models.OwnershipView{Subject: subject}, nil)

	rr := s.do(http.MethodGet, "/v1/subjects/album/alb-7/ownership?category=publishing", "label-1", nil)

	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlerSuite) TestSubjectParamsValidated() {
	s.Run("unknown subject type", func() {
		rr := s.do(http.MethodGet, "/v1/subjects/video/v-1/ownership", "label-1", nil)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
	s.Run("unknown category", func() {
		rr := s.do(http.MethodGet, "/v1/subjects/track/t-1/transfers?category=lyrics", "label-1", nil)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestListTransfersReturnsEmptyArray() {
	subject := models.Subject{Type: models.SubjectTrack, ID: "t-1"}
	s.service.EXPECT().ListTransfers(gomock.Any(), subject, models.RightsCategory("")).Return(nil, nil)

	rr := s.do(http.MethodGet, "/v1/subjects/track/t-1/transfers", "label-1", nil)

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"transfers":[]}`, rr.Body.String())
}

func (s *HandlerSuite) TestDetect() {
	subject := models.Subject{Type: models.SubjectTrack, ID: "t-1"}
	s.detector.EXPECT().DetectSubject(gomock.Any(), subject, models.RightsMaster).
		Return(conflict.Report{Findings: 1, Created: 1}, nil)

	rr := s.do(http.MethodPost, "/v1/subjects/track/t-1/detect?category=master", "label-1", nil)

	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[DetectResponse](s.T(), rr)
	s.Equal(1, resp.Report.Created)
}

func (s *HandlerSuite) TestListConflictsFilters() {
	s.service.EXPECT().ListConflicts(gomock.Any(), models.ConflictFilter{
		Subject:        &models.Subject{Type: models.SubjectTrack, ID: "t-1"},
		RightsCategory: models.RightsMaster,
		Type:           models.ConflictPercentageMismatch,
		Status:         models.ConflictOpen,
		Limit:          10,
	}).Return([]*models.OwnershipConflict{{ID: "conf-1"}}, nil)

	rr := s.do(http.MethodGet,
		"/v1/conflicts?subject_type=track&subject_id=t-1&category=master&type=percentage_mismatch&status=open&limit=10",
		"label-1", nil)

	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "conf-1")
}

func (s *HandlerSuite) TestListConflictsRejectsBadLimit() {
	rr := s.do(http.MethodGet, "/v1/conflicts?limit=0", "label-1", nil)

	s.Equal(http.StatusBadRequest, rr.Code)
}
