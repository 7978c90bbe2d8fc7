package discovery

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Zeroconf", func() {
	Describe("presenceTracker", func() {
		It("reports a service as found once", func() {
			p := newPresenceTracker(2)

			Expect(p.see("Living Room")).To(BeTrue())
			Expect(p.see("Living Room")).To(BeFalse())
			Expect(p.endRound()).To(BeEmpty())
			Expect(p.see("Living Room")).To(BeFalse())
		})

		It("reports a service lost after the configured number of missed rounds", func() {
			p := newPresenceTracker(2)
			p.see("Living Room")
			p.see("Bedroom")
			Expect(p.endRound()).To(BeEmpty())

			p.see("Bedroom")
			Expect(p.endRound()).To(BeEmpty())

			p.see("Bedroom")
			Expect(p.endRound()).To(Equal([]string{"Living Room"}))
		})

		It("resets the count when a service answers again", func() {
			p := newPresenceTracker(2)
			p.see("Living Room")
			p.endRound()

			Expect(p.endRound()).To(BeEmpty())
			p.see("Living Room")
			Expect(p.endRound()).To(BeEmpty())
			Expect(p.endRound()).To(BeEmpty())
			Expect(p.endRound()).To(Equal([]string{"Living Room"}))
		})

		It("finds a lost service again", func() {
			p := newPresenceTracker(1)
			p.see("Living Room")
			p.endRound()
			Expect(p.endRound()).To(Equal([]string{"Living Room"}))

			Expect(p.see("Living Room")).To(BeTrue())
		})

		It("sorts lost names", func() {
			p := newPresenceTracker(1)
			p.see("b")
			p.see("c")
			p.see("a")
			p.endRound()

			Expect(p.endRound()).To(Equal([]string{"a", "b", "c"}))
		})
	})

	DescribeTable("hostFor",
		func(v4, v6 []net.IP, hostName, expected string) {
			e := zeroconf.NewServiceEntry("Living Room", "_androidtvremote2._tcp", "local.")
			e.AddrIPv4 = v4
			e.AddrIPv6 = v6
			e.HostName = hostName

			Expect(hostFor(e)).To(Equal(expected))
		},
		Entry("prefers IPv4", []net.IP{net.ParseIP("192.168.1.20")}, []net.IP{net.ParseIP("2001:db8::1")}, "tv.local.", "192.168.1.20"),
		Entry("falls back to routable IPv6", nil, []net.IP{net.ParseIP("fe80::1"), net.ParseIP("2001:db8::1")}, "tv.local.", "2001:db8::1"),
		Entry("ignores the host name", nil, []net.IP{net.ParseIP("fe80::1")}, "tv.local.", ""),
		Entry("skips unspecified addresses", []net.IP{net.IPv4zero, net.ParseIP("10.0.0.5")}, nil, "", "10.0.0.5"),
		Entry("has nothing to offer", nil, nil, "", ""),
	)

	DescribeTable("trimServiceType",
		func(in, expected string) {
			Expect(trimServiceType(in)).To(Equal(expected))
		},
		Entry("bare", "_androidtvremote2._tcp", "_androidtvremote2._tcp"),
		Entry("trailing dot", "_androidtvremote2._tcp.", "_androidtvremote2._tcp"),
		Entry("with domain", "_androidtvremote2._tcp.local.", "_androidtvremote2._tcp"),
	)

	It("keeps reading entries until the resolver closes the channel", func() {
		ctx, cancel := context.WithCancel(context.Background())
		entries := make(chan *zeroconf.ServiceEntry)
		sent := make(chan int, 1)

		// Answers that arrive as the context ends are still sent
		go func() {
			<-ctx.Done()

			n := 0
			for _, name := range []string{"Living Room", "Bedroom", "Kitchen"} {
				entries <- zeroconf.NewServiceEntry(name, "_androidtvremote2._tcp", "local.")
				n++
			}

			close(entries)
			sent <- n
		}()

		done := make(chan struct{})
		go func() {
			drainEntries(cancel, entries)
			close(done)
		}()

		Eventually(done).Should(BeClosed())
		Expect(sent).To(Receive(Equal(3)))
	})

	It("fills in option defaults", func() {
		opts := ZeroconfOptions{LostAfter: 3}.withDefaults()

		Expect(opts.Domain).To(Equal("local."))
		Expect(opts.BrowseWindow).To(Equal(10 * time.Second))
		Expect(opts.LostAfter).To(Equal(3))
		Expect(opts.ResolveTimeout).To(Equal(5 * time.Second))
		Expect(opts.Log).NotTo(BeNil())
	})

	It("resolves cached entries without a network lookup", func() {
		z := NewZeroconf(ZeroconfOptions{})
		e := zeroconf.NewServiceEntry("Living Room", "_androidtvremote2._tcp", "local.")
		e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
		e.Port = 6466
		z.cache["Living Room"] = e

		l := &resolveRecorder{resolved: make(chan ResolvedService, 1)}
		Expect(z.ResolveService(context.Background(), ServiceInfo{Name: "Living Room", Type: "_androidtvremote2._tcp"}, l)).To(Succeed())

		Eventually(l.resolved).Should(Receive(Equal(ResolvedService{
			Name: "Living Room",
			Type: "_androidtvremote2._tcp",
			Host: "192.168.1.20",
			Port: 6466,
		})))
	})
})

type resolveRecorder struct {
	resolved chan ResolvedService
}

func (r *resolveRecorder) OnServiceResolved(svc ResolvedService) { r.resolved <- svc }
func (r *resolveRecorder) OnResolveFailed(ServiceInfo, int)      {}
