package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	sm "capm.service/models"
)

const (
	DefaultAddr = ":8080"

	// a ten year window on the free alpha vantage tier waits on the rate limiter per stock
	requestTimeout = 5 * time.Minute
)

func GetHttpServer(sc *ServiceContext, addr string) *http.Server {
	if addr == "" {
		addr = DefaultAddr
	}

	return &http.Server{
		Addr:           addr,
		Handler:        GetRouter(sc),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   requestTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

func GetRouter(sc *ServiceContext) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))

	router.Get("/api/ping", ping)
	router.Get("/api/stocks", func(w http.ResponseWriter, r *http.Request) { stocks(w, r, sc) })
	router.Get("/api/capm", func(w http.ResponseWriter, r *http.Request) { capmByGet(w, r, sc) })
	router.Post("/api/capm", func(w http.ResponseWriter, r *http.Request) { capmByPost(w, r, sc) })
	router.Get("/api/capm/chart", func(w http.ResponseWriter, r *http.Request) { capmChart(w, r, sc) })

	if sc.Metrics != nil {
		router.Handle("/metrics", sc.Metrics.Handler())
	}

	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func ping(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]string{"message": "pong"})
}

func stocks(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	res := sm.StocksResponse{
		Allowed:  sc.Universe.AllowedStocks,
		Defaults: sc.Universe.DefaultStocks,
		MinYears: sc.Universe.MinYears,
		MaxYears: sc.Universe.MaxYears,
	}
	writeJson(w, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func capmByGet(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	req, err := sc.requestFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runAndWrite(w, r, sc, req)
}

func capmByPost(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	var req sm.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidSelection("request body is not a valid analysis request: %s", err))
		return
	}
	runAndWrite(w, r, sc, req)
}

func capmChart(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	req, err := sc.requestFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	analysis, err := sc.RunAnalysis(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := RenderPriceChart(analysis.Table, "Price of all the Stocks")
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func runAndWrite(w http.ResponseWriter, r *http.Request, sc *ServiceContext, req sm.AnalysisRequest) {
	analysis, err := sc.RunAnalysis(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, sm.GetServiceResponseOk(BuildAnalysisResponse(analysis)))
}

// requestFromQuery reads ?stocks=TSLA,AAPL&years=2&riskFree=0.01, anything left out takes the universe default
func (sc *ServiceContext) requestFromQuery(r *http.Request) (sm.AnalysisRequest, error) {
	q := r.URL.Query()
	req := sm.AnalysisRequest{
		Stocks:       sc.Universe.DefaultStocks,
		Years:        sc.Universe.MinYears,
		RiskFreeRate: sc.Universe.RiskFreeRate,
	}

	if q.Has("stocks") {
		req.Stocks = strings.Split(q.Get("stocks"), ",")
	}

	if v := q.Get("years"); v != "" {
		years, err := strconv.Atoi(v)
		if err != nil {
			return req, invalidSelection("years %q is not a whole number", v)
		}
		req.Years = years
	}

	if v := q.Get("riskFree"); v != "" {
		rf, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, invalidSelection("riskFree %q is not a number", v)
		}
		req.RiskFreeRate = rf
	}

	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSelection):
		return http.StatusBadRequest
	case IsUserError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := UserMessage(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("analysis request failed")
		msg = fmt.Sprintf("internal error: %s", err)
	}
	writeJson(w, status, sm.GetServiceResponseError(msg))
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}
