package schema_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nrfta/multiquery/schema"
)

var _ = Describe("Registry", func() {
	var reg *schema.Registry

	BeforeEach(func() {
		reg = schema.NewRegistry()
	})

	Describe("collections", func() {
		It("derives the multi resolver name from the type name", func() {
			Expect(reg.RegisterCollection("Posts", "Post", "")).To(Succeed())

			c, err := reg.Collection("Posts")
			Expect(err).ToNot(HaveOccurred())
			Expect(c.TypeName).To(Equal("Post"))
			Expect(c.MultiResolverName).To(Equal("posts"))
		})

		It("keeps an explicit resolver name", func() {
			Expect(reg.RegisterCollection("Revisions", "Revision", "revisionsForPost")).To(Succeed())

			c, err := reg.Collection("Revisions")
			Expect(err).ToNot(HaveOccurred())
			Expect(c.MultiResolverName).To(Equal("revisionsForPost"))
		})

		It("rejects empty names", func() {
			Expect(reg.RegisterCollection("", "Post", "")).ToNot(Succeed())
			Expect(reg.RegisterCollection("Posts", "", "")).ToNot(Succeed())
		})

		It("reports unknown collections", func() {
			_, err := reg.Collection("Nope")
			Expect(err).To(MatchError(schema.ErrUnknownCollection))
		})
	})

	Describe("fragments", func() {
		It("registers a fragment with its type condition and spreads", func() {
			frag, err := reg.RegisterFragment(`
				fragment PostsList on Post {
				  _id
				  title
				  user { ...UsersMinimumInfo }
				  ...PostsMinimumInfo
				}`)
			Expect(err).ToNot(HaveOccurred())
			Expect(frag.Name).To(Equal("PostsList"))
			Expect(frag.TypeName).To(Equal("Post"))
			Expect(frag.Spreads).To(Equal([]string{"UsersMinimumInfo", "PostsMinimumInfo"}))
		})

		It("rejects text that is not a single fragment", func() {
			_, err := reg.RegisterFragment("query Q { posts { _id } }")
			Expect(err).To(HaveOccurred())

			_, err = reg.RegisterFragment("fragment A on Post { _id }\nfragment B on Post { _id }")
			Expect(err).To(HaveOccurred())

			_, err = reg.RegisterFragment("fragment A on Post {")
			Expect(err).To(HaveOccurred())
		})

		It("reports unknown fragments", func() {
			_, err := reg.Fragment("Nope")
			Expect(err).To(MatchError(schema.ErrUnknownFragment))
		})
	})

	Describe("FragmentText", func() {
		BeforeEach(func() {
			_, err := reg.RegisterFragment("fragment PostsList on Post { _id user { ...UsersMinimumInfo } ...PostsBase }")
			Expect(err).ToNot(HaveOccurred())
			_, err = reg.RegisterFragment("fragment PostsBase on Post { title user { ...UsersMinimumInfo } }")
			Expect(err).ToNot(HaveOccurred())
			_, err = reg.RegisterFragment("fragment UsersMinimumInfo on User { _id displayName }")
			Expect(err).ToNot(HaveOccurred())
		})

		It("includes every transitively spread fragment exactly once", func() {
			text, err := reg.FragmentText("PostsList")
			Expect(err).ToNot(HaveOccurred())

			Expect(strings.HasPrefix(text, "fragment PostsList on Post")).To(BeTrue())
			Expect(strings.Count(text, "fragment UsersMinimumInfo on User")).To(Equal(1))
			Expect(strings.Count(text, "fragment PostsBase on Post")).To(Equal(1))
		})

		It("fails when a spread fragment is missing", func() {
			_, err := reg.RegisterFragment("fragment CommentsList on Comment { _id ...Missing }")
			Expect(err).ToNot(HaveOccurred())

			_, err = reg.FragmentText("CommentsList")
			Expect(err).To(MatchError(schema.ErrUnknownFragment))
		})

		It("tolerates fragment cycles", func() {
			_, err := reg.RegisterFragment("fragment A on Post { _id ...B }")
			Expect(err).ToNot(HaveOccurred())
			_, err = reg.RegisterFragment("fragment B on Post { title ...A }")
			Expect(err).ToNot(HaveOccurred())

			text, err := reg.FragmentText("A")
			Expect(err).ToNot(HaveOccurred())
			Expect(strings.Count(text, "fragment A on Post")).To(Equal(1))
			Expect(strings.Count(text, "fragment B on Post")).To(Equal(1))
		})
	})
})

var _ = Describe("Load", func() {
	It("builds a registry from a YAML schema file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "schema.yaml")
		Expect(os.WriteFile(path, []byte(`
collections:
  - name: Posts
    typeName: Post
  - name: Comments
    typeName: Comment
    multiResolverName: commentsByPost
fragments:
  - |
    fragment PostsList on Post {
      _id
      title
    }
`), 0o600)).To(Succeed())

		reg, err := schema.Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(reg.Collections()).To(HaveLen(2))

		comments, err := reg.Collection("Comments")
		Expect(err).ToNot(HaveOccurred())
		Expect(comments.MultiResolverName).To(Equal("commentsByPost"))

		frag, err := reg.Fragment("PostsList")
		Expect(err).ToNot(HaveOccurred())
		Expect(frag.TypeName).To(Equal("Post"))
	})

	It("reports invalid fragments with their position", func() {
		_, err := schema.Parse([]byte("fragments:\n  - \"fragment Broken on Post {\"\n"))
		Expect(err).To(MatchError(ContainSubstring("fragment 0")))
	})

	It("reports missing files", func() {
		_, err := schema.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
