/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubtest provides an in-memory GitHub API for tests. It serves
// the REST endpoints and the GraphQL mutation the task phases use and records
// every write so tests can assert on comments, statuses and edits.
package githubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v75/github"
)

// DefaultLogin is the login of the authenticated user.
const DefaultLogin = "conda-forge-admin"

// Operation names accepted by FailOn.
const (
	OpGetPullRequest  = "GetPullRequest"
	OpEditPullRequest = "EditPullRequest"
	OpCreateComment   = "CreateComment"
	OpListComments    = "ListComments"
	OpEditComment     = "EditComment"
	OpCreateStatus    = "CreateStatus"
	OpGraphQL         = "GraphQL"
)

// Comment is an issue comment stored by the server.
type Comment struct {
	Owner   string
	Repo    string
	Number  int
	ID      int64
	Login   string
	Body    string
	HTMLURL string
	Edited  bool
}

// Status is a commit status recorded by the server.
type Status struct {
	Owner       string
	Repo        string
	SHA         string
	State       string
	TargetURL   string
	Description string
	Context     string
}

// PullEdit is a recorded pull request update.
type PullEdit struct {
	Owner  string
	Repo   string
	Number int
	State  string
}

// GraphQLCall is a recorded GraphQL request.
type GraphQLCall struct {
	Query     string
	Variables map[string]any
}

// Server is a fake GitHub API.
type Server struct {
	*httptest.Server

	// Login is attributed to comments created through the API.
	Login string

	mu        sync.Mutex
	pulls     map[string]*github.PullRequest
	comments  []*Comment
	statuses  []Status
	edits     []PullEdit
	graphql   []GraphQLCall
	failures  map[string]int
	nextID    int64
	callCount map[string]int
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Login:     DefaultLogin,
		pulls:     map[string]*github.PullRequest{},
		failures:  map[string]int{},
		callCount: map[string]int{},
		nextID:    1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", s.op(OpGetPullRequest, s.getPull))
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/pulls/{number}", s.op(OpEditPullRequest, s.editPull))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", s.op(OpCreateComment, s.createComment))
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}/comments", s.op(OpListComments, s.listComments))
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/comments/{id}", s.op(OpEditComment, s.editComment))
	mux.HandleFunc("POST /repos/{owner}/{repo}/statuses/{sha}", s.op(OpCreateStatus, s.createStatus))
	mux.HandleFunc("POST /graphql", s.op(OpGraphQL, s.graphQL))

	// Enterprise layout, as addressed by clients built from EnterpriseURL.
	root := http.NewServeMux()
	root.Handle("/api/v3/", http.StripPrefix("/api/v3", mux))
	root.HandleFunc("POST /api/graphql", s.op(OpGraphQL, s.graphQL))
	root.Handle("/", mux)

	s.Server = httptest.NewServer(root)
	t.Cleanup(s.Close)
	return s
}

// Client returns a go-github client pointed at the server.
func (s *Server) Client(t testing.TB) *github.Client {
	t.Helper()
	gh := github.NewClient(s.Server.Client())
	u, err := url.Parse(s.URL + "/")
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	gh.BaseURL = u
	gh.UploadURL = u
	return gh
}

// EnterpriseURL is the REST base URL in GitHub Enterprise form.
func (s *Server) EnterpriseURL() string {
	return s.URL + "/api/v3/"
}

// FailOn makes every subsequent call of op answer with code.
func (s *Server) FailOn(op string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = code
}

// Calls returns how often op was invoked, failed calls included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount[op]
}

// AddPullRequest registers pr under owner/repo. Missing URLs and the node
// ID are filled in.
func (s *Server) AddPullRequest(owner, repo string, pr *github.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := pr.GetNumber()
	if pr.HTMLURL == nil {
		pr.HTMLURL = github.Ptr(fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, n))
	}
	if pr.NodeID == nil {
		pr.NodeID = github.Ptr(fmt.Sprintf("PR_%s_%s_%d", owner, repo, n))
	}
	if pr.State == nil {
		pr.State = github.Ptr("open")
	}
	s.pulls[pullKey(owner, repo, n)] = pr
}

// PullRequest returns the stored pull request.
func (s *Server) PullRequest(owner, repo string, number int) *github.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls[pullKey(owner, repo, number)]
}

// AddComment seeds an existing comment and returns its ID.
func (s *Server) AddComment(owner, repo string, number int, login, body string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addComment(owner, repo, number, login, body).ID
}

// Comments returns the comments on a pull request in creation order.
func (s *Server) Comments(owner, repo string, number int) []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Comment
	for _, c := range s.comments {
		if c.Owner == owner && c.Repo == repo && c.Number == number {
			out = append(out, *c)
		}
	}
	return out
}

// Statuses returns every recorded commit status.
func (s *Server) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.statuses...)
}

// PullEdits returns every recorded pull request edit.
func (s *Server) PullEdits() []PullEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PullEdit(nil), s.edits...)
}

// GraphQLCalls returns every recorded GraphQL request.
func (s *Server) GraphQLCalls() []GraphQLCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GraphQLCall(nil), s.graphql...)
}

func pullKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

func (s *Server) op(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.callCount[name]++
		code, fail := s.failures[name]
		s.mu.Unlock()

		if fail {
			writeJSON(w, code, map[string]string{"message": name + " failed"})
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	return n, err == nil
}

func (s *Server) getPull(w http.ResponseWriter, r *http.Request) {
	n, ok := pathInt(r, "number")
	if !ok {
		notFound(w)
		return
	}
	s.mu.Lock()
	pr, ok := s.pulls[pullKey(r.PathValue("owner"), r.PathValue("repo"), n)]
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (s *Server) editPull(w http.ResponseWriter, r *http.Request) {
	n, ok := pathInt(r, "number")
	if !ok {
		notFound(w)
		return
	}
	var body struct {
		State *string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	owner, repo := r.PathValue("owner"), r.PathValue("repo")
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.pulls[pullKey(owner, repo, n)]
	if !ok {
		notFound(w)
		return
	}
	edit := PullEdit{Owner: owner, Repo: repo, Number: n}
	if body.State != nil {
		pr.State = body.State
		edit.State = *body.State
	}
	s.edits = append(s.edits, edit)
	writeJSON(w, http.StatusOK, pr)
}

func (s *Server) addComment(owner, repo string, number int, login, body string) *Comment {
	s.nextID++
	c := &Comment{
		Owner:   owner,
		Repo:    repo,
		Number:  number,
		ID:      s.nextID,
		Login:   login,
		Body:    body,
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/pull/%d#issuecomment-%d", owner, repo, number, s.nextID),
	}
	s.comments = append(s.comments, c)
	return c
}

func (c *Comment) toGitHub() *github.IssueComment {
	return &github.IssueComment{
		ID:      github.Ptr(c.ID),
		Body:    github.Ptr(c.Body),
		HTMLURL: github.Ptr(c.HTMLURL),
		User:    &github.User{Login: github.Ptr(c.Login)},
	}
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	n, ok := pathInt(r, "number")
	if !ok {
		notFound(w)
		return
	}
	var body github.IssueComment
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	c := s.addComment(r.PathValue("owner"), r.PathValue("repo"), n, s.Login, body.GetBody())
	out := c.toGitHub()
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	n, ok := pathInt(r, "number")
	if !ok {
		notFound(w)
		return
	}
	owner, repo := r.PathValue("owner"), r.PathValue("repo")

	s.mu.Lock()
	out := []*github.IssueComment{}
	for _, c := range s.comments {
		if c.Owner == owner && c.Repo == repo && c.Number == n {
			out = append(out, c.toGitHub())
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) editComment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		notFound(w)
		return
	}
	var body github.IssueComment
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ID == id && c.Owner == r.PathValue("owner") && c.Repo == r.PathValue("repo") {
			c.Body = body.GetBody()
			c.Edited = true
			writeJSON(w, http.StatusOK, c.toGitHub())
			return
		}
	}
	notFound(w)
}

func (s *Server) createStatus(w http.ResponseWriter, r *http.Request) {
	var body github.RepoStatus
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	st := Status{
		Owner:       r.PathValue("owner"),
		Repo:        r.PathValue("repo"),
		SHA:         r.PathValue("sha"),
		State:       body.GetState(),
		TargetURL:   body.GetTargetURL(),
		Description: body.GetDescription(),
		Context:     body.GetContext(),
	}
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, &body)
}

func (s *Server) graphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphql = append(s.graphql, GraphQLCall{Query: req.Query, Variables: req.Variables})

	if !strings.Contains(req.Query, "markPullRequestReadyForReview") {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]string{{"message": "unsupported operation"}},
		})
		return
	}

	input, _ := req.Variables["input"].(map[string]any)
	id, _ := input["pullRequestId"].(string)
	for _, pr := range s.pulls {
		if pr.GetNodeID() == id {
			pr.Draft = github.Ptr(false)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"markPullRequestReadyForReview": map[string]any{
						"pullRequest": map[string]any{"id": id, "isDraft": false},
					},
				},
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": []map[string]string{{"message": fmt.Sprintf("Could not resolve to a node with the global id of '%s'", id)}},
	})
}
