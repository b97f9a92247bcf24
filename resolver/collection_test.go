package resolver_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nrfta/multiquery/resolver"
)

var _ = Describe("Collection", func() {
	var (
		ctx     context.Context
		fetcher *countingFetcher[testPost]
		posts   *resolver.Collection[testPost]
	)

	resultIDs := func(out *resolver.MultiOutput) []int {
		ids := make([]int, len(out.Results))
		for i, r := range out.Results {
			ids[i] = r.(testPost).ID
		}
		return ids
	}

	BeforeEach(func() {
		ctx = context.Background()
		fetcher = &countingFetcher[testPost]{
			Fetcher: resolver.NewSliceFetcher(postField, makePosts(25)...),
		}
		posts = resolver.NewCollection[testPost]("Post", fetcher).
			View(resolver.View{
				Name:    "recent",
				OrderBy: []resolver.OrderBy{{Column: "created_at", Desc: true}},
			}).
			View(resolver.View{
				Name:    "userPosts",
				OrderBy: []resolver.OrderBy{{Column: "id"}},
				Filters: resolver.ExtraFilter(map[string]string{"userId": "user_id"}),
			})
	})

	It("should report its type name", func() {
		Expect(posts.TypeName()).To(Equal("Post"))
	})

	It("should use the first view when the terms name none", func() {
		out, err := posts.ResolveMulti(ctx, resolver.MultiInput{
			Terms: map[string]any{"limit": 3},
		}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(resultIDs(out)).To(Equal([]int{25, 24, 23}))
		Expect(out.TotalCount).To(BeNil())
	})

	It("should apply view filters and report the total when asked", func() {
		out, err := posts.ResolveMulti(ctx, resolver.MultiInput{
			Terms:       map[string]any{"view": "userPosts", "userId": "u2", "limit": float64(4)},
			EnableTotal: true,
		}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(resultIDs(out)).To(Equal([]int{2, 4, 6, 8}))
		Expect(out.TotalCount).To(HaveValue(Equal(12)))
	})

	It("should default the limit to 10", func() {
		out, err := posts.ResolveMulti(ctx, resolver.MultiInput{}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(out.Results).To(HaveLen(10))
	})

	It("should cap the limit at the configured maximum", func() {
		capped := resolver.NewCollection[testPost]("Post", fetcher,
			resolver.WithLimits(resolver.NewLimitConfig().WithMaxSize(5)),
		)

		out, err := capped.ResolveMulti(ctx, resolver.MultiInput{
			Terms: map[string]any{"limit": 50},
		}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(out.Results).To(HaveLen(5))
	})

	It("should reject unknown views", func() {
		_, err := posts.ResolveMulti(ctx, resolver.MultiInput{
			Terms: map[string]any{"view": "nope"},
		}, nil)

		Expect(errors.Is(err, resolver.ErrUnknownView)).To(BeTrue())
	})

	It("should wrap storage errors", func() {
		fetcher.err = errStorage

		_, err := posts.ResolveMulti(ctx, resolver.MultiInput{}, nil)

		Expect(errors.Is(err, errStorage)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("fetch Post"))
	})

	Describe("access filter", func() {
		onlyU1 := func(_ context.Context, items []testPost) ([]testPost, error) {
			out := []testPost{}
			for _, p := range items {
				if p.UserID == "u1" {
					out = append(out, p)
				}
			}
			return out, nil
		}

		It("should refill the window until the limit is reached", func() {
			posts.AccessFilter(onlyU1)

			out, err := posts.ResolveMulti(ctx, resolver.MultiInput{
				Terms: map[string]any{"view": "userPosts", "limit": 5},
			}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(resultIDs(out)).To(Equal([]int{1, 3, 5, 7, 9}))
			Expect(len(fetcher.fetches)).To(BeNumerically(">", 1))

			// Batches continue where the previous one stopped.
			Expect(fetcher.fetches[0].Offset).To(Equal(0))
			Expect(fetcher.fetches[0].Limit).To(Equal(5))
			Expect(fetcher.fetches[1].Offset).To(Equal(5))
		})

		It("should return a partial window when storage runs out", func() {
			posts.AccessFilter(onlyU1)

			out, err := posts.ResolveMulti(ctx, resolver.MultiInput{
				Terms: map[string]any{"view": "userPosts", "limit": 20},
			}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.Results).To(HaveLen(13))
		})

		It("should stop at the max iterations safeguard", func() {
			limited := resolver.NewCollection[testPost]("Post", fetcher,
				resolver.WithMaxIterations(1),
			).View(resolver.View{Name: "all", OrderBy: []resolver.OrderBy{{Column: "id"}}}).
				AccessFilter(onlyU1)

			out, err := limited.ResolveMulti(ctx, resolver.MultiInput{
				Terms: map[string]any{"limit": 4},
			}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(resultIDs(out)).To(Equal([]int{1, 3}))
			Expect(fetcher.fetches).To(HaveLen(1))
		})

		It("should stop at the max records safeguard", func() {
			limited := resolver.NewCollection[testPost]("Post", fetcher,
				resolver.WithMaxRecordsExamined(6),
			).View(resolver.View{Name: "all", OrderBy: []resolver.OrderBy{{Column: "id"}}}).
				AccessFilter(onlyU1)

			out, err := limited.ResolveMulti(ctx, resolver.MultiInput{
				Terms: map[string]any{"limit": 10},
			}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(resultIDs(out)).To(Equal([]int{1, 3, 5}))
		})

		It("should stop when the timeout expires", func() {
			slow := func(ctx context.Context, items []testPost) ([]testPost, error) {
				time.Sleep(20 * time.Millisecond)
				return onlyU1(ctx, items)
			}
			limited := resolver.NewCollection[testPost]("Post", fetcher,
				resolver.WithTimeout(10*time.Millisecond),
			).View(resolver.View{Name: "all", OrderBy: []resolver.OrderBy{{Column: "id"}}}).
				AccessFilter(slow)

			out, err := limited.ResolveMulti(ctx, resolver.MultiInput{
				Terms: map[string]any{"limit": 10},
			}, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(resultIDs(out)).To(Equal([]int{1, 3, 5, 7, 9}))
			Expect(fetcher.fetches).To(HaveLen(1))
		})

		It("should return filter errors", func() {
			failing := func(context.Context, []testPost) ([]testPost, error) {
				return nil, errors.New("authz down")
			}
			posts.AccessFilter(failing)

			_, err := posts.ResolveMulti(ctx, resolver.MultiInput{}, nil)

			Expect(err).To(MatchError(ContainSubstring("authz down")))
			Expect(err.Error()).To(ContainSubstring("iteration 1"))
		})
	})
})
