package sqlpool_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/666WXY666/WebServer/internal/sqlpool"
)

// newMemoryPool stands up a sqlpool.Pool of the given size against a
// shared-cache in-memory sqlite database, unique per call so specs don't
// bleed state into each other.
func newMemoryPool(size int) *sqlpool.Pool {
	p, _ := newMemoryPoolWithDSN(size)
	return p
}

// newMemoryPoolWithDSN is newMemoryPool but also returns the DSN, so a spec
// can open a second handle (e.g. read-only) against the same shared-cache
// database.
func newMemoryPoolWithDSN(size int) (*sqlpool.Pool, string) {
	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())

	p, err := sqlpool.OpenWithDialector(size, func() gorm.Dialector {
		return sqlite.Open(dsn)
	})
	Expect(err).ToNot(HaveOccurred())
	Expect(p.Migrate(context.Background())).To(Succeed())

	return p, dsn
}

var _ = Describe("Pool", func() {
	var pool *sqlpool.Pool

	AfterEach(func() {
		if pool != nil {
			Expect(pool.Close()).To(Succeed())
			pool = nil
		}
	})

	It("bounds concurrent acquisitions to its configured size", func() {
		pool = newMemoryPool(2)
		ctx := context.Background()

		c1, err := pool.Acquire(ctx)
		Expect(err).ToNot(HaveOccurred())
		c2, err := pool.Acquire(ctx)
		Expect(err).ToNot(HaveOccurred())

		timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = pool.Acquire(timeoutCtx)
		Expect(err).To(HaveOccurred())

		c1.Release()
		c2.Release()
	})

	It("returns a connection to the pool on Borrow's normal return", func() {
		pool = newMemoryPool(1)
		ctx := context.Background()

		Expect(pool.Borrow(ctx, func(db *gorm.DB) error { return nil })).To(Succeed())

		c, err := pool.Acquire(ctx)
		Expect(err).ToNot(HaveOccurred())
		c.Release()
	})

	It("returns a connection to the pool even when Borrow's function errors", func() {
		pool = newMemoryPool(1)
		ctx := context.Background()
		boom := fmt.Errorf("boom")

		err := pool.Borrow(ctx, func(db *gorm.DB) error { return boom })
		Expect(err).To(MatchError(boom))

		timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		c, err := pool.Acquire(timeoutCtx)
		Expect(err).ToNot(HaveOccurred())
		c.Release()
	})

	It("serves every concurrent borrower without over-committing the pool", func() {
		pool = newMemoryPool(3)
		ctx := context.Background()

		var inFlight int32
		var maxObserved int32
		var wg sync.WaitGroup

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pool.Borrow(ctx, func(db *gorm.DB) error {
					n := atomic.AddInt32(&inFlight, 1)
					for {
						m := atomic.LoadInt32(&maxObserved)
						if n <= m || atomic.CompareAndSwapInt32(&maxObserved, m, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt32(&inFlight, -1)
					return nil
				})
			}()
		}

		wg.Wait()
		Expect(atomic.LoadInt32(&maxObserved)).To(BeNumerically("<=", 3))
	})
})

var _ = Describe("VerifyUser", func() {
	var pool *sqlpool.Pool
	var dsn string

	BeforeEach(func() {
		pool, dsn = newMemoryPoolWithDSN(2)
	})

	AfterEach(func() {
		Expect(pool.Close()).To(Succeed())
	})

	It("registers a brand new username", func() {
		ok, err := pool.VerifyUser(context.Background(), "alice", "pw", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("rejects registering a username that already exists", func() {
		ctx := context.Background()
		_, err := pool.VerifyUser(ctx, "alice", "pw", false)
		Expect(err).ToNot(HaveOccurred())

		ok, err := pool.VerifyUser(ctx, "alice", "anything", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("authenticates a login with the matching plaintext password", func() {
		ctx := context.Background()
		_, err := pool.VerifyUser(ctx, "bob", "secret", false)
		Expect(err).ToNot(HaveOccurred())

		ok, err := pool.VerifyUser(ctx, "bob", "secret", true)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("rejects a login with the wrong password", func() {
		ctx := context.Background()
		_, err := pool.VerifyUser(ctx, "bob", "secret", false)
		Expect(err).ToNot(HaveOccurred())

		ok, err := pool.VerifyUser(ctx, "bob", "wrong", true)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("rejects a login for a username that was never registered", func() {
		ok, err := pool.VerifyUser(context.Background(), "ghost", "pw", true)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("reports a free username as registered even when the insert itself fails", func() {
		// A read-only handle against the same shared-cache database: the
		// existence check succeeds, the insert does not.
		roPool, err := sqlpool.OpenWithDialector(1, func() gorm.Dialector {
			return sqlite.Open(dsn + "&mode=ro")
		})
		Expect(err).ToNot(HaveOccurred())
		defer roPool.Close()

		ok, err := roPool.VerifyUser(context.Background(), "carol", "pw", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())

		// The quirk is observable only in the reported outcome; no row was
		// actually persisted.
		loginOK, err := pool.VerifyUser(context.Background(), "carol", "pw", true)
		Expect(err).ToNot(HaveOccurred())
		Expect(loginOK).To(BeFalse())
	})
})
