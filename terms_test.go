package multiquery_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nrfta/multiquery"
)

var _ = Describe("Terms", func() {
	DescribeTable("Limit",
		func(raw any, expected int, ok bool) {
			n, found := multiquery.Terms{"limit": raw}.Limit()

			Expect(found).To(Equal(ok))
			Expect(n).To(Equal(expected))
		},
		Entry("int", 20, 20, true),
		Entry("int64", int64(20), 20, true),
		Entry("whole float", float64(20), 20, true),
		Entry("fractional float", 2.5, 0, false),
		Entry("numeric string", "15", 15, true),
		Entry("other string", "many", 0, false),
		Entry("zero", 0, 0, false),
		Entry("negative", -3, 0, false),
		Entry("nil", nil, 0, false),
		Entry("bool", true, 0, false),
	)

	It("should report no limit when the key is absent", func() {
		_, ok := multiquery.Terms{"view": "recent"}.Limit()
		Expect(ok).To(BeFalse())
	})

	It("should set the limit on a copy", func() {
		terms := multiquery.Terms{"view": "recent"}

		out := terms.WithLimit(30)

		Expect(out).To(Equal(multiquery.Terms{"view": "recent", "limit": 30}))
		Expect(terms).ToNot(HaveKey("limit"))
	})

	It("should set the limit on nil terms", func() {
		var terms multiquery.Terms
		Expect(terms.WithLimit(5)).To(Equal(multiquery.Terms{"limit": 5}))
	})

	It("should copy nested values", func() {
		terms := multiquery.Terms{
			"view":  "recent",
			"tags":  []string{"go"},
			"ids":   []any{1, map[string]any{"in": []any{2}}},
			"range": map[string]any{"after": "2024-01-01"},
		}

		out := terms.Clone()
		terms["tags"].([]string)[0] = "rust"
		terms["ids"].([]any)[1].(map[string]any)["in"].([]any)[0] = 3
		terms["range"].(map[string]any)["after"] = "2025-01-01"

		Expect(out).To(Equal(multiquery.Terms{
			"view":  "recent",
			"tags":  []string{"go"},
			"ids":   []any{1, map[string]any{"in": []any{2}}},
			"range": map[string]any{"after": "2024-01-01"},
		}))
	})

	Describe("Key", func() {
		key := func(t multiquery.Terms) string {
			k, err := t.Key()
			Expect(err).ToNot(HaveOccurred())
			return k
		}

		It("should ignore key order and number representation", func() {
			a := multiquery.Terms{"view": "userPosts", "userId": "u1", "limit": 10, "tags": []any{1, "a"}}
			b := multiquery.Terms{"tags": []any{float64(1), "a"}, "limit": float64(10), "userId": "u1", "view": "userPosts"}

			Expect(key(a)).To(Equal(key(b)))
		})

		It("should compare nested values", func() {
			a := multiquery.Terms{"filter": map[string]any{"status": 2, "tags": []string{"x"}}}
			b := multiquery.Terms{"filter": map[string]any{"tags": []any{"x"}, "status": float64(2)}}
			c := multiquery.Terms{"filter": map[string]any{"tags": []any{"y"}, "status": float64(2)}}

			Expect(key(a)).To(Equal(key(b)))
			Expect(key(a)).ToNot(Equal(key(c)))
		})

		It("should differ for different terms", func() {
			Expect(key(multiquery.Terms{"view": "recent"})).
				ToNot(Equal(key(multiquery.Terms{"view": "top"})))
			Expect(key(multiquery.Terms{"limit": 10})).
				ToNot(Equal(key(multiquery.Terms{"limit": 10.5})))
		})

		It("should treat nil and empty terms alike", func() {
			Expect(key(nil)).To(Equal(key(multiquery.Terms{})))
		})
	})
})

var _ = Describe("MemoryLocation", func() {
	It("should rewrite the current entry on Replace", func() {
		loc, err := multiquery.NewMemoryLocation("/posts?limit=10")
		Expect(err).ToNot(HaveOccurred())

		q := loc.Query()
		q.Set("limit", "20")
		Expect(loc.Replace(q)).To(Succeed())

		Expect(loc.String()).To(Equal("/posts?limit=20"))
		Expect(loc.History()).To(Equal([]string{"/posts?limit=20"}))
	})

	It("should add an entry on Push", func() {
		loc, err := multiquery.NewMemoryLocation("/posts")
		Expect(err).ToNot(HaveOccurred())

		Expect(loc.Push("/posts/1")).To(Succeed())

		Expect(loc.History()).To(Equal([]string{"/posts", "/posts/1"}))
		Expect(loc.Query()).To(BeEmpty())
	})

	It("should reject invalid URLs", func() {
		_, err := multiquery.NewMemoryLocation("http://[::1")
		Expect(err).To(HaveOccurred())
	})
})
