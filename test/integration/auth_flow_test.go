// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/calmpulse/calmpulse/internal/auth"
)

type response struct {
	status int
	body   map[string]any
}

func (s *stack) do(method, path, token string, payload any) response {
	var body bytes.Buffer
	if payload != nil {
		Expect(json.NewEncoder(&body).Encode(payload)).To(Succeed())
	}
	req, err := http.NewRequest(method, s.server.URL+path, &body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := response{status: resp.StatusCode}
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out.body) //nolint:errcheck // empty bodies decode to nil
	}
	return out
}

// signup registers a fresh account and returns its access and refresh tokens.
func (s *stack) signup() (email, access, refresh string) {
	suffix := strings.ToLower(ulid.Make().String())
	email = "user-" + suffix + "@calmpulse.test"
	r := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       email,
		"displayName": "u" + suffix[len(suffix)-12:],
		"password":    "correct horse battery",
	})
	Expect(r.status).To(Equal(http.StatusCreated))
	return email, r.body["accessToken"].(string), r.body["refreshToken"].(string)
}

func errorKind(r response) string {
	detail, _ := r.body["error"].(map[string]any)
	kind, _ := detail["kind"].(string)
	return kind
}

var _ = Describe("Auth flow against PostgreSQL", func() {
	var s *stack

	Context("with default replay handling", func() {
		BeforeEach(func() {
			s = startStack(false)
		})

		It("registers, logs in and reads the profile", func() {
			email, access, _ := s.signup()

			me := s.do(http.MethodGet, "/api/users/me", access, nil)
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.body["email"]).To(Equal(email))

			login := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
				"email":    email,
				"password": "correct horse battery",
			})
			Expect(login.status).To(Equal(http.StatusOK))
			Expect(login.body["accessToken"]).NotTo(BeEmpty())
		})

		It("rejects a duplicate email with a conflict", func() {
			email, _, _ := s.signup()
			r := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
				"email":       email,
				"displayName": "someone-else",
				"password":    "correct horse battery",
			})
			Expect(r.status).To(Equal(http.StatusConflict))
			Expect(errorKind(r)).To(Equal("Conflict"))
		})

		It("rotates refresh tokens once and counts the replay", func() {
			_, _, refresh := s.signup()

			first := s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
			Expect(first.status).To(Equal(http.StatusOK))
			next := first.body["refreshToken"].(string)
			Expect(next).NotTo(Equal(refresh))

			replay := s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
			Expect(replay.status).To(Equal(http.StatusBadRequest))
			Expect(errorKind(replay)).To(Equal("InvalidToken"))
			Expect(testutil.ToFloat64(s.metrics.RefreshReplaysTotal)).To(BeNumerically("==", 1))

			// Without lineage revocation the successor survives the replay.
			again := s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": next})
			Expect(again.status).To(Equal(http.StatusOK))
		})

		It("lets exactly one concurrent rotation win", func() {
			_, _, refresh := s.signup()

			const racers = 8
			statuses := make(chan int, racers)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					statuses <- s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh}).status
				}()
			}
			close(start)
			wg.Wait()
			close(statuses)

			counts := map[int]int{}
			for status := range statuses {
				counts[status]++
			}
			Expect(counts[http.StatusOK]).To(Equal(1))
			Expect(counts[http.StatusBadRequest]).To(Equal(racers - 1))
		})

		It("revokes every session on logout", func() {
			_, access, refresh := s.signup()

			r := s.do(http.MethodPost, "/api/auth/revoke", access, nil)
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body["revoked"]).To(BeTrue())
			Expect(r.body["count"]).To(BeNumerically("==", 1))

			after := s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
			Expect(after.status).To(Equal(http.StatusBadRequest))
		})

		It("deletes the account with its refresh records", func() {
			email, access, refresh := s.signup()

			del := s.do(http.MethodDelete, "/api/users/me", access, nil)
			Expect(del.status).To(Equal(http.StatusOK))
			Expect(del.body["deleted"]).To(BeTrue())

			Expect(s.do(http.MethodGet, "/api/users/me", access, nil).status).To(Equal(http.StatusNotFound))
			Expect(s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh}).status).
				To(Equal(http.StatusBadRequest))
			login := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
				"email":    email,
				"password": "correct horse battery",
			})
			Expect(login.status).To(Equal(http.StatusUnauthorized))
		})

		It("updates the profile and refuses a taken email", func() {
			taken, _, _ := s.signup()
			_, access, _ := s.signup()

			r := s.do(http.MethodPatch, "/api/users/me", access, map[string]string{"displayName": "renamed-" + ulid.Make().String()[20:]})
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body["displayName"]).To(HavePrefix("renamed-"))

			clash := s.do(http.MethodPatch, "/api/users/me", access, map[string]string{"email": taken})
			Expect(clash.status).To(Equal(http.StatusConflict))
		})
	})

	Context("with lineage revocation", func() {
		BeforeEach(func() {
			s = startStack(true)
		})

		It("revokes the successor when a rotated token is replayed", func() {
			_, _, refresh := s.signup()

			first := s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
			Expect(first.status).To(Equal(http.StatusOK))
			next := first.body["refreshToken"].(string)

			Expect(s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh}).status).
				To(Equal(http.StatusBadRequest))
			Expect(s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": next}).status).
				To(Equal(http.StatusBadRequest))
		})
	})

	Context("expired record purge", func() {
		BeforeEach(func() {
			s = startStack(false)
		})

		It("deletes records past their grace window", func(ctx SpecContext) {
			_, access, _ := s.signup()
			me := s.do(http.MethodGet, "/api/users/me", access, nil)
			accountID := int64(me.body["id"].(float64))

			now := time.Now()
			stale, err := auth.NewRefreshRecord(accountID, auth.HashRefreshSecret("stale-"+ulid.Make().String()),
				ulid.Make(), now.Add(-96*time.Hour), now.Add(-72*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.backend.Refresh.Create(ctx, stale)).To(Succeed())

			ledger, err := auth.NewRefreshLedger(s.backend.Refresh, s.backend.Tx)
			Expect(err).NotTo(HaveOccurred())
			janitor, err := auth.NewJanitor(auth.JanitorConfig{Interval: time.Hour, Grace: 24 * time.Hour}, ledger,
				auth.WithPurgeRecorder(s.metrics))
			Expect(err).NotTo(HaveOccurred())

			purged, err := janitor.RunOnce(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(BeNumerically(">=", 1))
			Expect(testutil.ToFloat64(s.metrics.RefreshPurgedTotal)).To(BeNumerically("==", float64(purged)))
		})
	})
})
