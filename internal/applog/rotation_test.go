package applog

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("rotatingFile", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "applog-rotation-")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("creates the base filename with no sequence tag for the first file of a day", func() {
		rf := newRotatingFile(dir, ".log")
		defer rf.Close()

		day := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
		Expect(rf.WriteLine(day, []byte("line one\n"))).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, "2026_07_30.log"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("line one\n"))
	})

	It("rotates to a new file when the date changes", func() {
		rf := newRotatingFile(dir, ".log")
		defer rf.Close()

		day1 := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
		day2 := time.Date(2026, 7, 31, 0, 1, 0, 0, time.UTC)

		Expect(rf.WriteLine(day1, []byte("d1\n"))).To(Succeed())
		Expect(rf.WriteLine(day2, []byte("d2\n"))).To(Succeed())

		_, err := os.Stat(filepath.Join(dir, "2026_07_30.log"))
		Expect(err).ToNot(HaveOccurred())
		_, err = os.Stat(filepath.Join(dir, "2026_07_31.log"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("rotates to a sequence-tagged file once the per-file line budget is exceeded", func() {
		rf := newRotatingFile(dir, ".log")
		defer rf.Close()
		day := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
		Expect(rf.WriteLine(day, []byte("first\n"))).To(Succeed())
		rf.lineCount = linesPerFile // force the next write to cross the threshold

		Expect(rf.WriteLine(day, []byte("overflow\n"))).To(Succeed())

		_, err := os.Stat(filepath.Join(dir, "2026_07_30-1.log"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("appends across repeated writes to the same file", func() {
		rf := newRotatingFile(dir, ".log")
		defer rf.Close()

		day := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
		Expect(rf.WriteLine(day, []byte("a\n"))).To(Succeed())
		Expect(rf.WriteLine(day, []byte("b\n"))).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, "2026_07_30.log"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("a\nb\n"))
	})
})
