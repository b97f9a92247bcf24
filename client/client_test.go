package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/nrfta/multiquery/client"
)

// scriptedTransport answers requests from a queue of canned results.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []*client.Response
	errs      []error
	requests  []*client.Request
}

func (s *scriptedTransport) push(data string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.responses = append(s.responses, nil)
	} else {
		s.responses = append(s.responses, &client.Response{Data: json.RawMessage(data)})
	}
	s.errs = append(s.errs, err)
}

func (s *scriptedTransport) Do(_ context.Context, req *client.Request) (*client.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	resp, err := s.responses[0], s.errs[0]
	s.responses, s.errs = s.responses[1:], s.errs[1:]
	return resp, err
}

var _ = Describe("Client", func() {
	var (
		ctx       context.Context
		transport *scriptedTransport
		c         *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = &scriptedTransport{}
		c = client.New(transport, client.WithLogger(zerolog.Nop()))
	})

	Describe("Execute", func() {
		It("should return GraphQL errors as a ResponseError", func() {
			c = client.New(client.TransportFunc(func(context.Context, *client.Request) (*client.Response, error) {
				return &client.Response{Errors: []client.GraphQLError{{Message: "a"}, {Message: "b"}}}, nil
			}))

			_, err := c.Execute(ctx, &client.Request{OperationName: "multiPostQuery"})

			var respErr *client.ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.Errors).To(HaveLen(2))
			Expect(err.Error()).To(Equal("graphql: multiPostQuery: a; b"))
		})

		It("should wrap transport errors with the operation name", func() {
			boom := errors.New("boom")
			transport.push("", boom)

			_, err := c.Execute(ctx, &client.Request{OperationName: "multiPostQuery"})

			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(err.Error()).To(Equal("execute multiPostQuery: boom"))
		})
	})

	Describe("ObservableQuery", func() {
		var q *client.ObservableQuery

		BeforeEach(func() {
			q = c.Watch(client.WatchOptions{
				Query:         "query multiPostQuery { posts { totalCount } }",
				OperationName: "multiPostQuery",
				Variables:     map[string]any{"page": 1},
			})
		})

		It("should start in the loading state without sending anything", func() {
			state := q.State()

			Expect(state.Loading).To(BeTrue())
			Expect(state.NetworkStatus).To(Equal(client.StatusLoading))
			Expect(state.NetworkStatus.InFlight()).To(BeTrue())
			Expect(transport.requests).To(BeEmpty())
		})

		It("should hold the data after a successful start", func() {
			transport.push(`{"n":1}`, nil)

			Expect(q.Start(ctx)).To(Succeed())

			state := q.State()
			Expect(state.Loading).To(BeFalse())
			Expect(state.NetworkStatus).To(Equal(client.StatusReady))
			Expect(state.Data).To(MatchJSON(`{"n":1}`))
			Expect(transport.requests[0].Variables).To(Equal(map[string]any{"page": 1}))
		})

		It("should keep the previous data when a fetch fails", func() {
			transport.push(`{"n":1}`, nil)
			transport.push("", errors.New("offline"))
			Expect(q.Start(ctx)).To(Succeed())

			err := q.FetchMore(ctx, client.FetchMoreOptions{Variables: map[string]any{"page": 2}})

			Expect(err).To(HaveOccurred())
			state := q.State()
			Expect(state.Data).To(MatchJSON(`{"n":1}`))
			Expect(state.Error).To(MatchError(ContainSubstring("offline")))
			Expect(state.NetworkStatus).To(Equal(client.StatusError))
			Expect(state.Loading).To(BeFalse())
		})

		It("should merge fetch more answers and keep the stored variables", func() {
			transport.push(`{"n":1}`, nil)
			transport.push(`{"n":2}`, nil)
			Expect(q.Start(ctx)).To(Succeed())

			var prevSeen json.RawMessage
			err := q.FetchMore(ctx, client.FetchMoreOptions{
				Variables: map[string]any{"page": 2},
				UpdateQuery: func(prev, next json.RawMessage) json.RawMessage {
					prevSeen = prev
					return json.RawMessage(`{"merged":true}`)
				},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(prevSeen).To(MatchJSON(`{"n":1}`))
			Expect(q.State().Data).To(MatchJSON(`{"merged":true}`))
			Expect(transport.requests[1].Variables).To(Equal(map[string]any{"page": 2}))
			Expect(q.Variables()).To(Equal(map[string]any{"page": 1}))
		})

		It("should store new variables and clear a previous error on success", func() {
			transport.push("", errors.New("offline"))
			transport.push(`{"n":3}`, nil)
			Expect(q.Start(ctx)).ToNot(Succeed())

			Expect(q.SetVariables(ctx, map[string]any{"page": 3})).To(Succeed())

			Expect(q.Variables()).To(Equal(map[string]any{"page": 3}))
			Expect(q.State().Error).ToNot(HaveOccurred())
			Expect(q.State().Data).To(MatchJSON(`{"n":3}`))
		})

		It("should refetch with one-off variables", func() {
			transport.push(`{"n":1}`, nil)
			transport.push(`{"n":4}`, nil)
			transport.push(`{"n":5}`, nil)
			Expect(q.Start(ctx)).To(Succeed())

			Expect(q.Refetch(ctx, map[string]any{"page": 4})).To(Succeed())
			Expect(transport.requests[1].Variables).To(Equal(map[string]any{"page": 4}))

			Expect(q.Refetch(ctx, nil)).To(Succeed())
			Expect(transport.requests[2].Variables).To(Equal(map[string]any{"page": 1}))
			Expect(q.State().Data).To(MatchJSON(`{"n":5}`))
		})

		Describe("overlapping requests", func() {
			var release chan struct{}

			BeforeEach(func() {
				release = make(chan struct{})
				c = client.New(client.TransportFunc(func(_ context.Context, req *client.Request) (*client.Response, error) {
					page := req.Variables["page"]
					if page == 2 {
						<-release
					}
					return &client.Response{Data: json.RawMessage(fmt.Sprintf(`{"page":%v}`, page))}, nil
				}), client.WithLogger(zerolog.Nop()))

				q = c.Watch(client.WatchOptions{
					Query:         "query multiPostQuery { posts { totalCount } }",
					OperationName: "multiPostQuery",
					Variables:     map[string]any{"page": 1},
				})
				Expect(q.Start(ctx)).To(Succeed())
			})

			It("should stay loading until every request settled", func() {
				done := make(chan error, 1)
				go func() {
					defer GinkgoRecover()
					done <- q.Refetch(ctx, map[string]any{"page": 2})
				}()
				Eventually(func() client.NetworkStatus { return q.State().NetworkStatus }).
					Should(Equal(client.StatusRefetch))

				fetched := make(chan error, 1)
				go func() {
					defer GinkgoRecover()
					fetched <- q.FetchMore(ctx, client.FetchMoreOptions{Variables: map[string]any{"page": 1}})
				}()
				Eventually(fetched).Should(Receive(BeNil()))

				state := q.State()
				Expect(state.Loading).To(BeTrue())
				Expect(state.NetworkStatus).To(Equal(client.StatusRefetch))

				close(release)
				Eventually(done).Should(Receive(BeNil()))
				Expect(q.State().Loading).To(BeFalse())
				Expect(q.State().NetworkStatus).To(Equal(client.StatusReady))
			})

			It("should drop a fetch more answer that arrives after new variables", func() {
				done := make(chan error, 1)
				go func() {
					defer GinkgoRecover()
					done <- q.FetchMore(ctx, client.FetchMoreOptions{Variables: map[string]any{"page": 2}})
				}()
				Eventually(func() client.NetworkStatus { return q.State().NetworkStatus }).
					Should(Equal(client.StatusFetchMore))

				Expect(q.SetVariables(ctx, map[string]any{"page": 3})).To(Succeed())

				state := q.State()
				Expect(state.Data).To(MatchJSON(`{"page":3}`))
				Expect(state.Loading).To(BeTrue())
				Expect(state.NetworkStatus).To(Equal(client.StatusFetchMore))

				close(release)
				Eventually(done).Should(Receive(MatchError(client.ErrSuperseded)))

				state = q.State()
				Expect(state.Data).To(MatchJSON(`{"page":3}`))
				Expect(state.Error).ToNot(HaveOccurred())
				Expect(state.Loading).To(BeFalse())
				Expect(state.NetworkStatus).To(Equal(client.StatusReady))
			})
		})

		It("should never fetch a skipped query", func() {
			skipped := c.Watch(client.WatchOptions{Query: "{ posts { totalCount } }", Skip: true})

			Expect(skipped.State().Loading).To(BeFalse())
			Expect(skipped.Start(ctx)).To(Succeed())
			Expect(skipped.FetchMore(ctx, client.FetchMoreOptions{})).To(Succeed())
			Expect(skipped.Refetch(ctx, nil)).To(Succeed())
			Expect(skipped.SetVariables(ctx, map[string]any{"page": 2})).To(Succeed())
			Expect(transport.requests).To(BeEmpty())
		})
	})

	DescribeTable("NetworkStatus",
		func(s client.NetworkStatus, name string, inFlight bool) {
			Expect(s.String()).To(Equal(name))
			Expect(s.InFlight()).To(Equal(inFlight))
		},
		Entry("loading", client.StatusLoading, "loading", true),
		Entry("setVariables", client.StatusSetVariables, "setVariables", true),
		Entry("fetchMore", client.StatusFetchMore, "fetchMore", true),
		Entry("refetch", client.StatusRefetch, "refetch", true),
		Entry("poll", client.StatusPoll, "poll", true),
		Entry("ready", client.StatusReady, "ready", false),
		Entry("error", client.StatusError, "error", false),
		Entry("idle", client.NetworkStatus(0), "idle", false),
	)
})
