package gpio_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/pkg/gpio"
)

var _ = Describe("SysfsPin", func() {
	var root string

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(root, name))
		Expect(err).NotTo(HaveOccurred())
		return string(b)
	}

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	Context("when the line is already exported", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(filepath.Join(root, "gpio22"), 0o755)).To(Succeed())
		})

		It("should configure the line as an output", func() {
			pin, err := gpio.OpenSysfs(root, 22)
			Expect(err).NotTo(HaveOccurred())
			Expect(pin.Line()).To(Equal(22))
			Expect(read("gpio22/direction")).To(Equal("out"))
			_, err = os.Stat(filepath.Join(root, "export"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("should write the level", func() {
			pin, err := gpio.OpenSysfs(root, 22)
			Expect(err).NotTo(HaveOccurred())

			Expect(pin.Set(true)).To(Succeed())
			Expect(read("gpio22/value")).To(Equal("1"))

			Expect(pin.Set(false)).To(Succeed())
			Expect(read("gpio22/value")).To(Equal("0"))
		})
	})

	Context("when the line is not exported", func() {
		It("should request an export and fail if the kernel does not create it", func() {
			_, err := gpio.OpenSysfs(root, 5)
			Expect(err).To(HaveOccurred())
			Expect(read("export")).To(Equal("5"))
		})
	})

	It("should reject a negative line", func() {
		_, err := gpio.OpenSysfs(root, -1)
		Expect(err).To(HaveOccurred())
	})
})
