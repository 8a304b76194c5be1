package unit_test

import (
	"github.com/lightstep/lightstep-autotrace-go/unit"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Identifiers", func() {
	base := unit.ExecContext{PID: 100, TID: 101, SP: 0x7fff_1234_5678}

	Describe("ThreadIdentifier", func() {
		It("ignores the stack pointer", func() {
			a, ok := unit.ThreadIdentifier{}.Identify(base)
			Expect(ok).To(BeTrue())
			moved := base
			moved.SP = 0x1000
			b, _ := unit.ThreadIdentifier{}.Identify(moved)
			Expect(a).To(Equal(b))
		})

		It("distinguishes threads", func() {
			other := base
			other.TID = 102
			a, _ := unit.ThreadIdentifier{}.Identify(base)
			b, _ := unit.ThreadIdentifier{}.Identify(other)
			Expect(a).NotTo(Equal(b))
		})

		It("fails without a thread id", func() {
			_, ok := unit.ThreadIdentifier{}.Identify(unit.ExecContext{})
			Expect(ok).To(BeFalse())
		})
	})

	Describe("TaskIdentifier", func() {
		It("requires a runtime task id", func() {
			_, ok := unit.TaskIdentifier{}.Identify(base)
			Expect(ok).To(BeFalse())
		})

		It("follows the task across threads", func() {
			a := base
			a.TaskID = 9
			b := a
			b.TID = 555
			ka, _ := unit.TaskIdentifier{}.Identify(a)
			kb, _ := unit.TaskIdentifier{}.Identify(b)
			Expect(ka).To(Equal(kb))
		})
	})

	Describe("StackIdentifier", func() {
		subject := unit.StackIdentifier{MaskBits: 16}

		It("is stable within a stack region", func() {
			deeper := base
			deeper.SP = base.SP - 0x200
			a, _ := subject.Identify(base)
			b, _ := subject.Identify(deeper)
			Expect(a).To(Equal(b))
		})

		It("separates tasks on distinct stacks of one thread", func() {
			other := base
			other.SP = base.SP + 0x100000
			a, _ := subject.Identify(base)
			b, _ := subject.Identify(other)
			Expect(a).NotTo(Equal(b))
		})

		It("collides when two tasks reuse a region", func() {
			reused := base
			reused.SP = base.SP + 0x10
			a, _ := subject.Identify(base)
			b, _ := subject.Identify(reused)
			Expect(a).To(Equal(b))
		})

		It("does not share keys with the thread strategy", func() {
			a, _ := subject.Identify(base)
			b, _ := unit.ThreadIdentifier{}.Identify(base)
			Expect(a).NotTo(Equal(b))
		})
	})

	Describe("Default", func() {
		It("prefers the task id", func() {
			withTask := base
			withTask.TaskID = 77
			a, _ := unit.Default().Identify(withTask)
			b, _ := unit.TaskIdentifier{}.Identify(withTask)
			Expect(a).To(Equal(b))
		})

		It("falls back to the stack heuristic", func() {
			a, ok := unit.Default().Identify(base)
			Expect(ok).To(BeTrue())
			b, _ := unit.StackIdentifier{MaskBits: unit.DefaultStackMaskBits}.Identify(base)
			Expect(a).To(Equal(b))
		})

		It("fails when nothing identifies the unit", func() {
			_, ok := unit.Default().Identify(unit.ExecContext{})
			Expect(ok).To(BeFalse())
		})
	})
})
