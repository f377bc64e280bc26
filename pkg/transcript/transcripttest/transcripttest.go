// Package transcripttest holds the behaviour every transcript.Store must have.
package transcripttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/trickle/pkg/transcript"
)

// DescribeStore registers specs against the stores returned by newStore.
// newStore is called before every test and must return an empty store.
func DescribeStore(newStore func() transcript.Store) {
	var (
		store transcript.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = nil
		store = newStore()
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	Describe("Append and List", func() {
		It("returns entries in insertion order", func() {
			at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			Expect(store.Append(ctx, transcript.Entry{ThreadID: "t1", Role: transcript.RoleUser, Content: "hi", CreatedAt: at})).To(Succeed())
			Expect(store.Append(ctx, transcript.Entry{ThreadID: "t1", Role: transcript.RoleAssistant, Content: "Olá!\nmundo", CreatedAt: at.Add(time.Second)})).To(Succeed())

			entries, err := store.List(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Role).To(Equal(transcript.RoleUser))
			Expect(entries[0].Content).To(Equal("hi"))
			Expect(entries[0].CreatedAt).To(BeTemporally("~", at, time.Millisecond))
			Expect(entries[1].Content).To(Equal("Olá!\nmundo"))
		})

		It("stamps entries without a time", func() {
			before := time.Now().Add(-time.Second)
			Expect(store.Append(ctx, transcript.Entry{ThreadID: "t1", Role: transcript.RoleUser, Content: "x"})).To(Succeed())

			entries, err := store.List(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries[0].CreatedAt).To(BeTemporally(">", before))
		})

		It("keeps threads apart", func() {
			Expect(store.Append(ctx, transcript.Entry{ThreadID: "a", Role: transcript.RoleUser, Content: "1"})).To(Succeed())
			Expect(store.Append(ctx, transcript.Entry{ThreadID: "b", Role: transcript.RoleUser, Content: "2"})).To(Succeed())

			entries, err := store.List(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Content).To(Equal("1"))
		})

		It("rejects entries without a thread id", func() {
			err := store.Append(ctx, transcript.Entry{Role: transcript.RoleUser, Content: "x"})
			Expect(err).To(MatchError(transcript.ErrEmptyThreadID))
		})

		It("rejects entries without a role", func() {
			err := store.Append(ctx, transcript.Entry{ThreadID: "t", Content: "x"})
			Expect(err).To(HaveOccurred())
		})

		It("returns NotFoundError for unknown threads", func() {
			_, err := store.List(ctx, "nope")
			Expect(err).To(MatchError(transcript.NotFoundError{ThreadID: "nope"}))
		})

		It("accepts concurrent appends", func() {
			var wg sync.WaitGroup
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(store.Append(ctx, transcript.Entry{ThreadID: "c", Role: transcript.RoleUser, Content: fmt.Sprint(i)})).To(Succeed())
				}()
			}
			wg.Wait()

			entries, err := store.List(ctx, "c")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(10))
		})
	})

	Describe("Threads", func() {
		It("is empty for a new store", func() {
			threads, err := store.Threads(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(threads).To(BeEmpty())
		})

		It("lists threads most recently written first", func() {
			for _, id := range []string{"a", "b", "a", "c", "b"} {
				Expect(store.Append(ctx, transcript.Entry{ThreadID: id, Role: transcript.RoleUser, Content: id})).To(Succeed())
			}

			threads, err := store.Threads(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(threads).To(Equal([]transcript.Thread{
				{ID: "b", Entries: 2},
				{ID: "c", Entries: 1},
				{ID: "a", Entries: 2},
			}))
		})
	})
}
