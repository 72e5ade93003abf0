package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BufferImpl", func() {

	var (
		buf Buffer
	)

	BeforeEach(func() {
		buf = NewBuffer("Buf", 2)
	})

	It("should allow push and pop", func() {
		Expect(buf.Name()).To(Equal("Buf"))
		Expect(buf.Capacity()).To(Equal(2))
		Expect(buf.CanPush()).To(BeTrue())

		buf.Push(1)
		Expect(buf.CanPush()).To(BeTrue())
		Expect(buf.Size()).To(Equal(1))

		buf.Push(2)
		Expect(buf.CanPush()).To(BeFalse())
		Expect(buf.Size()).To(Equal(2))
		Expect(func() {
			buf.Push(3)
		}).To(Panic())

		Expect(buf.Peek()).To(Equal(1))
		Expect(buf.Pop()).To(Equal(1))
		Expect(buf.Size()).To(Equal(1))
		Expect(buf.Peek()).To(Equal(2))
		Expect(buf.Pop()).To(Equal(2))
		Expect(buf.Size()).To(Equal(0))
		Expect(buf.Peek()).To(BeNil())
		Expect(buf.Pop()).To(BeNil())
	})

	It("should clear", func() {
		buf.Push(2)
		Expect(buf.Size()).To(Equal(1))

		buf.Clear()

		Expect(buf.Size()).To(Equal(0))
		Expect(buf.Peek()).To(BeNil())
	})

	It("should grow", func() {
		buf.Push(1)
		buf.Push(2)

		buf.SetCapacity(3)

		Expect(buf.CanPush()).To(BeTrue())
		buf.Push(3)
		Expect(buf.Size()).To(Equal(3))
	})

	It("should not shrink below size", func() {
		buf.Push(1)
		buf.Push(2)

		Expect(func() { buf.SetCapacity(1) }).To(Panic())
	})

	It("should invoke hooks at push and pop", func() {
		hook := &posRecorder{}
		buf.AcceptHook(hook)

		buf.Push(1)
		buf.Pop()

		Expect(hook.positions).To(Equal([]*HookPos{HookPosBufPush, HookPosBufPop}))
		Expect(func() { buf.AcceptHook(hook) }).To(Panic())
	})
})

type posRecorder struct {
	positions []*HookPos
}

func (r *posRecorder) Func(ctx HookCtx) {
	r.positions = append(r.positions, ctx.Pos)
}

var _ = Describe("Naming", func() {
	It("should accept hierarchical names", func() {
		Expect(func() { NameMustBeValid("Model.Delay[0].In") }).NotTo(Panic())
		Expect(func() { NameMustBeValid("Grid[0][1]") }).NotTo(Panic())
	})

	It("should panic if the name is empty", func() {
		Expect(func() { NameMustBeValid("") }).To(Panic())
	})

	It("should panic if name include underscore", func() {
		Expect(func() { NameMustBeValid("Src_0") }).To(Panic())
	})

	It("should panic if name include dash", func() {
		Expect(func() { NameMustBeValid("Src-0") }).To(Panic())
	})

	It("should panic if name is not capitalized", func() {
		Expect(func() { NameMustBeValid("src") }).To(Panic())
	})

	It("should have paired square brackets", func() {
		Expect(func() { NameMustBeValid("Src[0") }).To(Panic())
		Expect(func() { NameMustBeValid("Src0]") }).To(Panic())
	})

	It("should require integer indices", func() {
		Expect(ValidateName("Src[a]")).To(HaveOccurred())
	})

	It("should panic if element name is empty", func() {
		Expect(func() { NameMustBeValid("Model..In") }).To(Panic())
	})

	It("should build name", func() {
		Expect(BuildName("", "Model")).To(Equal("Model"))
		Expect(BuildName("Model", "Delay")).To(Equal("Model.Delay"))
		Expect(BuildNameWithIndex("Model", "Src", 3)).To(Equal("Model.Src[3]"))
	})
})
