package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"shortly/internal/auth"
	"shortly/internal/database"
	"shortly/internal/models"
	"shortly/internal/ratelimit"
	"shortly/internal/service"
	"shortly/pkg/response"
)

const (
	testBaseURL = "https://sho.rt"
	testSecret  = "test-secret"
)

type MockURLService struct {
	mock.Mock
}

func (s *MockURLService) ShortenURL(ctx context.Context, originalURL string, ownerID *int64) (*models.URL, bool, error) {
	args := s.Called(ctx, originalURL, ownerID)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Bool(1), args.Error(2)
}

func (s *MockURLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	args := s.Called(ctx, shortCode)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) GetURLStats(ctx context.Context, shortCode string, callerID *int64) (*models.URL, error) {
	args := s.Called(ctx, shortCode, callerID)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) ListURLs(ctx context.Context, ownerID int64) ([]*models.URL, error) {
	args := s.Called(ctx, ownerID)
	urls, _ := args.Get(0).([]*models.URL)
	return urls, args.Error(1)
}

type HandlersTestSuite struct {
	suite.Suite
	logger     *httplog.Logger
	urlSvcMock *MockURLService
	server     *httptest.Server
	e          *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.urlSvcMock = new(MockURLService)
	router := NewRouter(suite.logger, suite.urlSvcMock, ratelimit.NewMemoryLimiter(), auth.NewVerifier(testSecret), testBaseURL)
	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.urlSvcMock.AssertExpectations(suite.T())
	suite.server.Close()
}

func (suite *HandlersTestSuite) signToken(subject string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		suite.T().Fatalf("Failed to sign token: %v", err)
	}

	return signed
}

func int64Ptr(v int64) *int64 {
	return &v
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong\n")
	})
}

func (suite *HandlersTestSuite) TestShortenURL() {
	const path = "/api/v1/shorten"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("invalid request body", func() {
		suite.e.POST(path).
			WithJSON("invalid body").
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.BadRequestResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "invalid url",
			}).
			Expect().
			Status(http.StatusUnprocessableEntity).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("invalid token", func() {
		suite.e.POST(path).
			WithHeader("Authorization", "Bearer not-a-token").
			WithJSON(map[string]string{
				"original_url": "https://example.com",
			}).
			Expect().
			Status(http.StatusUnauthorized).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UnauthorizedResponse.Message)
	})

	suite.Run("anonymous rate limit", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", (*int64)(nil)).
			Times(2).
			Return(&models.URL{
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com",
			}, true, nil)

		for i := 0; i < 2; i++ {
			suite.e.POST(path).
				WithJSON(map[string]string{
					"original_url": "https://example.com",
				}).
				Expect().
				Status(http.StatusCreated)
		}

		resp := suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
			}).
			Expect().
			Status(http.StatusTooManyRequests)

		resp.Header("Retry-After").NotEmpty()

		obj := resp.JSON().Object()
		obj.HasValue("status", response.StatusError)
		obj.ContainsKey("retry_after")
		obj.Value("limits").Object().
			Value("anonymous").Object().
			HasValue("per_minute", 2).
			HasValue("per_hour", 5)
		obj.Value("limits").Object().
			Value("registered").Object().
			HasValue("per_minute", 10).
			HasValue("per_hour", 100)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 2)
	})

	suite.Run("registered tier allows more requests", func() {
		token := suite.signToken("7")

		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", int64Ptr(7)).
			Times(3).
			Return(&models.URL{
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com",
				OwnerID:     int64Ptr(7),
			}, true, nil)

		for i := 0; i < 3; i++ {
			suite.e.POST(path).
				WithHeader("Authorization", "Bearer "+token).
				WithJSON(map[string]string{
					"original_url": "https://example.com",
				}).
				Expect().
				Status(http.StatusCreated)
		}

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 3)
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", (*int64)(nil)).
			Times(1).
			Return(nil, false, errors.New("unknown error"))

		suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
			}).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", (*int64)(nil)).
			Times(1).
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com",
			}, true, nil)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("short_code", "abc123xy").
			HasValue("short_url", testBaseURL+"/abc123xy").
			HasValue("original_url", "https://example.com")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})

	suite.Run("existing record reused", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", (*int64)(nil)).
			Times(1).
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com",
			}, false, nil)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
			}).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Object().
			HasValue("short_code", "abc123xy")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	const path = "/%s"

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123xy").
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("expired", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123xy").
			Times(1).
			Return(nil, service.ErrURLExpired)

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			Expect().
			Status(http.StatusGone).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.URLExpiredResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123xy").
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123xy").
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com/a/very/long/path",
			}, nil)

		resp := suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusMovedPermanently)

		resp.Header("Location").IsEqual("https://example.com/a/very/long/path")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})
}

func (suite *HandlersTestSuite) TestGetURLStats() {
	const path = "/api/v1/stats/%s"

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("GetURLStats", mock.Anything, "abc123xy", (*int64)(nil)).
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "GetURLStats", 1)
	})

	suite.Run("forbidden", func() {
		suite.urlSvcMock.
			On("GetURLStats", mock.Anything, "abc123xy", (*int64)(nil)).
			Times(1).
			Return(nil, service.ErrStatsForbidden)

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			Expect().
			Status(http.StatusForbidden).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ForbiddenResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "GetURLStats", 1)
	})

	suite.Run("success as owner", func() {
		token := suite.signToken("7")

		suite.urlSvcMock.
			On("GetURLStats", mock.Anything, "abc123xy", int64Ptr(7)).
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123xy",
				OriginalURL: "https://example.com",
				OwnerID:     int64Ptr(7),
				Clicks:      3,
			}, nil)

		suite.e.GET(fmt.Sprintf(path, "abc123xy")).
			WithHeader("Authorization", "Bearer "+token).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Object().
			HasValue("short_code", "abc123xy").
			HasValue("clicks", 3)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "GetURLStats", 1)
	})
}

func (suite *HandlersTestSuite) TestListURLs() {
	const path = "/api/v1/urls"

	suite.Run("authentication required", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusUnauthorized).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UnauthorizedResponse.Message)
	})

	suite.Run("server error", func() {
		token := suite.signToken("7")

		suite.urlSvcMock.
			On("ListURLs", mock.Anything, int64(7)).
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.GET(path).
			WithHeader("Authorization", "Bearer "+token).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ListURLs", 1)
	})

	suite.Run("success", func() {
		token := suite.signToken("7")

		suite.urlSvcMock.
			On("ListURLs", mock.Anything, int64(7)).
			Times(1).
			Return([]*models.URL{
				{ShortCode: "code2abc", OwnerID: int64Ptr(7)},
				{ShortCode: "code1abc", OwnerID: int64Ptr(7)},
			}, nil)

		data := suite.e.GET(path).
			WithHeader("Authorization", "Bearer "+token).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array()

		data.Length().IsEqual(2)
		data.Value(0).Object().HasValue("short_code", "code2abc")
		data.Value(1).Object().HasValue("short_code", "code1abc")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ListURLs", 1)
	})
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
