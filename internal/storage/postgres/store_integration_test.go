//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
	"github.com/hongminglow/passgate/internal/storage/postgres"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = postgres.NewUserStore(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.Close(ctx) })
	})

	uniqueUser := func() models.User {
		n := time.Now().UnixNano()
		return models.User{
			Username:     fmt.Sprintf("user_%d", n),
			Email:        fmt.Sprintf("user_%d@example.com", n),
			PasswordHash: "hash",
		}
	}

	It("creates and finds a user by every key", func() {
		created, err := store.CreateUser(ctx, uniqueUser())
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).NotTo(BeEmpty())

		for _, find := range []func() (models.User, error){
			func() (models.User, error) { return store.FindByID(ctx, created.ID) },
			func() (models.User, error) { return store.FindByUsername(ctx, created.Username) },
			func() (models.User, error) { return store.FindByEmail(ctx, created.Email) },
			func() (models.User, error) { return store.FindByUsernameOrEmail(ctx, "nobody", created.Email) },
		} {
			got, err := find()
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(created.ID))
		}
	})

	It("rejects a duplicate username", func() {
		u := uniqueUser()
		_, err := store.CreateUser(ctx, u)
		Expect(err).NotTo(HaveOccurred())

		u.Email = "other_" + u.Email
		_, err = store.CreateUser(ctx, u)
		Expect(errors.Is(err, storage.ErrAlreadyExists)).To(BeTrue())
	})

	It("allows only one of many concurrent identical registrations", func() {
		u := uniqueUser()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if _, err := store.CreateUser(ctx, u); err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(success).To(Equal(1))
	})

	It("updates the password hash", func() {
		created, err := store.CreateUser(ctx, uniqueUser())
		Expect(err).NotTo(HaveOccurred())

		Expect(store.UpdatePassword(ctx, created.ID, "newhash")).To(Succeed())

		got, err := store.FindByID(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("newhash"))
	})

	It("reports missing users as not found", func() {
		_, err := store.FindByUsername(ctx, "definitely_missing")
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(store.UpdatePassword(ctx, "missing", "h"), storage.ErrNotFound)).To(BeTrue())
	})
})
