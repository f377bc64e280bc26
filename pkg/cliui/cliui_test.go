package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/trickle/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("reports success without a spinner off-terminal", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "Opening store", func() error { return nil })

			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
			Expect(buf.String()).To(ContainSubstring("Opening store"))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("passes the error through", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			Expect(cliui.Step(&buf, "Opening store", func() error { return boom })).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		})
	})

	It("formats durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("does not treat buffers as terminals", func() {
		Expect(cliui.IsTerminal(&bytes.Buffer{})).To(BeFalse())
	})

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("# Title\n\nsome *text*")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Title"))
		Expect(out).To(ContainSubstring("text"))
	})
})
