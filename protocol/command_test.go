package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/tvremote/protocol"
)

var _ = Describe("Commands", func() {
	It("maps every known action to a non-zero key code", func() {
		for _, a := range protocol.Actions() {
			Expect(protocol.KeyCode(a)).NotTo(BeZero(), string(a))
		}
	})

	It("maps unknown actions to key code 0", func() {
		Expect(protocol.KeyCode("TELEPORT")).To(BeZero())
	})

	Describe("ParseAction()", func() {
		It("accepts key event names in any case", func() {
			a, ok := protocol.ParseAction("volume_up")
			Expect(ok).To(BeTrue())
			Expect(a).To(Equal(protocol.VolumeUp))
		})

		It("accepts short aliases", func() {
			a, ok := protocol.ParseAction("select")
			Expect(ok).To(BeTrue())
			Expect(a).To(Equal(protocol.DpadCenter))
		})

		It("returns unknown names upper-cased", func() {
			a, ok := protocol.ParseAction("teleport")
			Expect(ok).To(BeFalse())
			Expect(a).To(Equal(protocol.Action("TELEPORT")))
		})
	})
})
