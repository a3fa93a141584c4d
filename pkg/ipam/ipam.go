/*
Copyright 2025 Paradrop Labs
*/

// Package ipam manages the dynamic network pool: leasing fixed-size
// subnets out of a configured supernet for chute interfaces.
package ipam

import (
	"encoding/binary"
	"net"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrPoolExhausted is returned when no subnet of the requested size fits
// in the supernet.
var ErrPoolExhausted = errors.New("dynamic network pool exhausted")

// ipRange is a pair of IPs spanning a subnet.
type ipRange struct {
	start net.IP
	end   net.IP
}

// Pool leases subnets of a fixed prefix length from a supernet.
// Allocation is first-fit; released subnets are recycled through a free
// list before the scan advances. Safe for use from a single writer; the
// mutex guards incidental readers.
type Pool struct {
	mu       sync.Mutex
	network  net.IPNet
	mask     net.IPMask
	leased   []net.IPNet
	released []net.IPNet
}

// NewPool returns a pool carving prefixLen-sized subnets out of the given
// supernet CIDR.
func NewPool(supernet string, prefixLen int) (*Pool, error) {
	_, network, err := net.ParseCIDR(supernet)
	if err != nil {
		return nil, errors.Wrapf(err, "parse network pool %q", supernet)
	}
	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil, errors.Errorf("network pool %q: only IPv4 supernets are supported", supernet)
	}
	if prefixLen < ones || prefixLen > 30 {
		return nil, errors.Errorf("network pool %q cannot hold /%d subnets", supernet, prefixLen)
	}
	return &Pool{
		network: *network,
		mask:    net.CIDRMask(prefixLen, bits),
	}, nil
}

// Next leases the next unused subnet from the pool.
func (p *Pool) Next() (net.IPNet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.released); n > 0 {
		subnet := p.released[0]
		p.released = p.released[1:]
		p.leased = append(p.leased, subnet)
		return subnet, nil
	}

	subnet, err := free(p.network, p.mask, p.leased)
	if err != nil {
		return net.IPNet{}, err
	}
	p.leased = append(p.leased, subnet)
	return subnet, nil
}

// Reserve marks an already-assigned subnet as leased, for rebuilding pool
// state from persisted records at startup.
func (p *Pool) Reserve(subnet net.IPNet) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.leased {
		if l.IP.Equal(subnet.IP) {
			return
		}
	}
	p.leased = append(p.leased, subnet)
}

// Release returns a leased subnet to the pool for reuse.
func (p *Pool) Release(subnet net.IPNet) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, l := range p.leased {
		if l.IP.Equal(subnet.IP) {
			p.leased = append(p.leased[:i], p.leased[i+1:]...)
			p.released = append(p.released, subnet)
			return
		}
	}
}

// free scans the supernet for the first gap that fits a subnet with the
// given mask.
func free(network net.IPNet, mask net.IPMask, taken []net.IPNet) (net.IPNet, error) {
	subnets := make([]net.IPNet, len(taken))
	copy(subnets, taken)
	sort.Slice(subnets, func(i, j int) bool {
		return ipToDecimal(subnets[i].IP) < ipToDecimal(subnets[j].IP)
	})

	for _, gap := range freeRanges(network, subnets) {
		start := ipToDecimal(gap.start)
		end := ipToDecimal(gap.end)
		// Align the start up to a subnet boundary.
		step := size(mask)
		if rem := start % step; rem != 0 {
			start += step - rem
		}
		if end-start+1 >= step {
			return net.IPNet{IP: decimalToIP(start), Mask: mask}, nil
		}
	}
	return net.IPNet{}, ErrPoolExhausted
}

// freeRanges returns the unallocated gaps of the network, given the sorted
// list of taken subnets.
func freeRanges(network net.IPNet, subnets []net.IPNet) []ipRange {
	networkRange := rangeOf(network)
	if len(subnets) == 0 {
		return []ipRange{networkRange}
	}

	var gaps []ipRange

	first := rangeOf(subnets[0])
	if !networkRange.start.Equal(first.start) {
		gaps = append(gaps, ipRange{start: networkRange.start, end: Add(first.start, -1)})
	}

	for i := 0; i < len(subnets)-1; i++ {
		cur := rangeOf(subnets[i])
		next := rangeOf(subnets[i+1])
		if ipToDecimal(cur.end)+1 != ipToDecimal(next.start) {
			gaps = append(gaps, ipRange{start: Add(cur.end, 1), end: Add(next.start, -1)})
		}
	}

	last := rangeOf(subnets[len(subnets)-1])
	if !last.end.Equal(networkRange.end) {
		gaps = append(gaps, ipRange{start: Add(last.end, 1), end: networkRange.end})
	}

	return gaps
}

// Add increments the given IP by the number. Negative values decrement.
func Add(ip net.IP, number int) net.IP {
	return decimalToIP(ipToDecimal(ip) + number)
}

// Network returns the network address of addr under mask.
func Network(addr net.IP, mask net.IPMask) net.IP {
	return addr.Mask(mask)
}

// Broadcast returns the last address of the network.
func Broadcast(network net.IPNet) net.IP {
	return Add(network.IP, size(network.Mask)-1)
}

// Hosts returns the first n usable host addresses of the network,
// starting one past the network address.
func Hosts(network net.IPNet, n int) []net.IP {
	hosts := make([]net.IP, n)
	for i := range hosts {
		hosts[i] = Add(network.IP, i+1)
	}
	return hosts
}

func rangeOf(network net.IPNet) ipRange {
	return ipRange{start: network.IP, end: Add(network.IP, size(network.Mask)-1)}
}

func ipToDecimal(ip net.IP) int {
	t := ip
	if len(ip) == 16 {
		t = ip[12:16]
	}
	return int(binary.BigEndian.Uint32(t))
}

func decimalToIP(n int) net.IP {
	t := make(net.IP, 4)
	binary.BigEndian.PutUint32(t, uint32(n))
	return t
}

func size(mask net.IPMask) int {
	ones, bits := mask.Size()
	return 1 << uint(bits-ones)
}
