package physmem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/osvm/mem/physmem"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := physmem.NewStorage(4096, 12)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(0, 2)
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := physmem.NewStorage(8192, 12)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should return error if accessing over the capacity", func() {
		storage := physmem.NewStorage(4096, 12)
		err := storage.Write(4097, []byte{1})
		Expect(err).To(MatchError(physmem.ErrBeyondCapacity))

		_, err = storage.Read(4095, 2)
		Expect(err).To(MatchError(physmem.ErrBeyondCapacity))
	})

	It("should read untouched pages as zero", func() {
		storage := physmem.NewStorage(8192, 12)

		page, err := storage.ReadPage(4096)

		Expect(err).NotTo(HaveOccurred())
		Expect(page).To(Equal(make([]byte, 4096)))
	})

	It("should zero and copy whole pages", func() {
		storage := physmem.NewStorage(3*4096, 12)
		Expect(storage.Write(4096+10, []byte{9, 9})).To(Succeed())

		Expect(storage.CopyPage(8192, 4096+100)).To(Succeed())
		copied, _ := storage.Read(8192+10, 2)
		Expect(copied).To(Equal([]byte{9, 9}))

		Expect(storage.ZeroPage(4096)).To(Succeed())
		zeroed, _ := storage.ReadPage(4096)
		Expect(zeroed).To(Equal(make([]byte, 4096)))
	})
})
