package applog_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/666WXY666/WebServer/internal/applog"
)

var _ = Describe("Logger", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "applog-logger-")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("writes synchronously when queueCap is zero", func() {
		l, err := applog.Init(applog.InfoLevel, dir, ".log", 0)
		Expect(err).ToNot(HaveOccurred())

		l.Infof("hello %s", "world")
		Expect(l.Close()).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))

		data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("hello world"))
		Expect(string(data)).To(ContainSubstring("[INFO]"))
	})

	It("drops records below the configured level", func() {
		l, err := applog.Init(applog.WarnLevel, dir, ".log", 0)
		Expect(err).ToNot(HaveOccurred())

		l.Infof("should not appear")
		l.Errorf("should appear")
		Expect(l.Close()).To(Succeed())

		data, err := os.ReadFile(findOnlyFile(dir))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).ToNot(ContainSubstring("should not appear"))
		Expect(string(data)).To(ContainSubstring("should appear"))
	})

	It("drains the async queue on Close before returning", func() {
		l, err := applog.Init(applog.DebugLevel, dir, ".log", 64)
		Expect(err).ToNot(HaveOccurred())

		for i := 0; i < 50; i++ {
			l.Debugf("record %d", i)
		}
		Expect(l.Close()).To(Succeed())

		data, err := os.ReadFile(findOnlyFile(dir))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("record 49"))
	})

	It("suppresses all output once disabled", func() {
		l, err := applog.Init(applog.DebugLevel, dir, ".log", 0)
		Expect(err).ToNot(HaveOccurred())

		l.SetEnabled(false)
		l.Errorf("silenced")
		time.Sleep(10 * time.Millisecond)
		Expect(l.Close()).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(0))
	})
})

func findOnlyFile(dir string) string {
	entries, err := os.ReadDir(dir)
	Expect(err).ToNot(HaveOccurred())
	Expect(entries).To(HaveLen(1))
	return filepath.Join(dir, entries[0].Name())
}
