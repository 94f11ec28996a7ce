// Package engine is the local dataflow rule engine.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"github.com/NVIDIA/dflow/cmn"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine", func() {
	const localRank = 0

	var (
		svc *mockSvc
		e   *Engine
	)

	wu := func(id int64) *cmn.WorkUnit {
		return &cmn.WorkUnit{ID: cmn.WorkID(id), Name: "wu"}
	}
	sub := func(s string) cmn.Subscript { return cmn.SubscriptStr(s) }
	idsub := func(id int64, s string) cmn.IdSub {
		return cmn.IdSub{ID: cmn.DatumID(id), Sub: sub(s)}
	}

	BeforeEach(func() {
		svc = newMockSvc(localRank)
		e = New(localRank, svc, nil)
	})

	Describe("admission", func() {
		It("releases a rule with no inputs immediately", func() {
			w := wu(1)
			ready, err := e.Rule("t0", nil, nil, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeTrue())
			Expect(e.NumWaiting()).To(BeZero())
		})

		It("parks a rule with an open input", func() {
			ready, err := e.Rule("t1", []cmn.DatumID{42}, nil, wu(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeFalse())
			Expect(e.NumWaiting()).To(Equal(1))
		})

		It("releases immediately when every input is already closed", func() {
			svc.close(42, cmn.NoSub)
			ready, err := e.Rule("t6", []cmn.DatumID{42}, nil, wu(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeTrue())
			Expect(e.NumWaiting()).To(BeZero())
		})

		It("treats a GCed datum as closed", func() {
			svc.missing[11] = struct{}{}
			ready, err := e.Rule("t6", []cmn.DatumID{11}, nil, wu(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeTrue())
		})

		It("rejects the null id", func() {
			_, err := e.Rule("bad", []cmn.DatumID{cmn.NullID}, nil, wu(1))
			Expect(err).To(HaveOccurred())
			Expect(cmn.ErrCode(err)).To(Equal(cmn.CodeInvalid))
		})

		It("leaves the indices untouched when validation fails mid-rule", func() {
			_, err := e.Rule("bad", []cmn.DatumID{5, cmn.NullID}, nil, wu(1))
			Expect(cmn.ErrCode(err)).To(Equal(cmn.CodeInvalid))

			var r cmn.WorkArray
			svc.close(5, cmn.NoSub)
			Expect(e.Close(5, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())
		})

		It("never releases work whose admission failed downstream", func() {
			svc.owner[88] = 1
			svc.failing[88] = struct{}{}
			_, err := e.Rule("t", []cmn.DatumID{88}, nil, wu(1))
			Expect(cmn.ErrCode(err)).To(Equal(cmn.CodeUnknown))
			Expect(e.NumWaiting()).To(BeZero())

			var r cmn.WorkArray
			Expect(e.Close(88, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())
		})

		It("rejects re-admission of a parked work-unit id", func() {
			_, err := e.Rule("t", []cmn.DatumID{5}, nil, wu(1))
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Rule("t'", []cmn.DatumID{6}, nil, wu(1))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("close", func() {
		It("releases a single waiter", func() {
			w := wu(1)
			ready, err := e.Rule("t1", []cmn.DatumID{42}, nil, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeFalse())

			var r cmn.WorkArray
			svc.close(42, cmn.NoSub)
			Expect(e.Close(42, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w}))
			Expect(e.NumWaiting()).To(BeZero())
			Expect(e.tdSubscribed).NotTo(HaveKey(cmn.DatumID(42)))
		})

		It("marks duplicate inputs in one pass", func() {
			w := wu(2)
			ready, err := e.Rule("t2", []cmn.DatumID{7, 7, 7}, nil, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeFalse())

			var r cmn.WorkArray
			svc.close(7, cmn.NoSub)
			Expect(e.Close(7, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w}))
		})

		It("does not satisfy a subscripted waiter with a whole-datum close", func() {
			w := wu(3)
			ready, err := e.Rule("t3", nil, []cmn.IdSub{idsub(5, "a")}, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeFalse())

			var r cmn.WorkArray
			Expect(e.Close(5, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())

			svc.close(5, sub("a"))
			Expect(e.SubClose(5, sub("a"), &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w}))
			Expect(e.NumWaiting()).To(BeZero())
		})

		It("fans a close out to multiple waiters, releasing only the unblocked", func() {
			w4, w5 := wu(4), wu(5)
			_, err := e.Rule("t4", []cmn.DatumID{9}, nil, w4)
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Rule("t5", []cmn.DatumID{9, 10}, nil, w5)
			Expect(err).NotTo(HaveOccurred())

			var r cmn.WorkArray
			svc.close(9, cmn.NoSub)
			Expect(e.Close(9, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w4}))
			Expect(e.NumWaiting()).To(Equal(1))

			svc.close(10, cmn.NoSub)
			Expect(e.Close(10, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w5}))
			Expect(e.NumWaiting()).To(BeZero())
		})

		It("releases ready work in admission order", func() {
			w1, w2, w3 := wu(11), wu(12), wu(13)
			for i, w := range []*cmn.WorkUnit{w1, w2, w3} {
				_, err := e.Rule("t", []cmn.DatumID{99}, nil, w)
				Expect(err).NotTo(HaveOccurred(), "rule %d", i)
			}
			var r cmn.WorkArray
			svc.close(99, cmn.NoSub)
			Expect(e.Close(99, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w1, w2, w3}))
		})

		It("is a no-op for a datum nobody waits on", func() {
			var r cmn.WorkArray
			Expect(e.Close(1234, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())
		})

		It("does not re-release an already released rule", func() {
			w := wu(6)
			svc.close(11, cmn.NoSub)
			ready, err := e.Rule("t6", []cmn.DatumID{11}, nil, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ready).To(BeTrue())

			var r cmn.WorkArray
			Expect(e.Close(11, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())
		})
	})

	Describe("progress cursor", func() {
		It("never rescans observed-closed inputs and stays monotone", func() {
			w := wu(7)
			_, err := e.Rule("t7", []cmn.DatumID{1, 2}, nil, w)
			Expect(err).NotTo(HaveOccurred())
			t := e.waiting[w.ID]
			Expect(t.blocker).To(BeZero())

			// out-of-order close: bit 1 flips but the cursor holds at 0
			var r cmn.WorkArray
			svc.close(2, cmn.NoSub)
			Expect(e.Close(2, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(BeZero())
			Expect(t.blocker).To(BeZero())
			Expect(t.inputClosed(1)).To(BeTrue())

			svc.close(1, cmn.NoSub)
			Expect(e.Close(1, &r)).NotTo(HaveOccurred())
			Expect(r.Drain()).To(Equal([]*cmn.WorkUnit{w}))
			Expect(t.blocker).To(Equal(2))
		})

		It("reports ready when every bit is set", func() {
			t := newTransform("t", []cmn.DatumID{1, 2}, nil, wu(8))
			t.markClosed(0)
			t.markClosed(1)
			subscribed, err := e.progress(t)
			Expect(err).NotTo(HaveOccurred())
			Expect(subscribed).To(BeFalse())
			Expect(t.allClosed()).To(BeTrue())
		})
	})

	Describe("subscription dedup", func() {
		const remoteRank = 1

		It("subscribes remotely once per datum", func() {
			svc.owner[77] = remoteRank
			_, err := e.Rule("a", []cmn.DatumID{77}, nil, wu(21))
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Rule("b", []cmn.DatumID{77}, nil, wu(22))
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.remoteSubs).To(HaveLen(1))
			Expect(e.tdSubscribed).To(HaveKey(cmn.DatumID(77)))

			var r cmn.WorkArray
			Expect(e.Close(77, &r)).NotTo(HaveOccurred())
			Expect(r.Len()).To(Equal(2))
			Expect(e.tdSubscribed).To(BeEmpty())
		})

		It("does not mirror local-path subscriptions", func() {
			_, err := e.Rule("a", []cmn.DatumID{78}, nil, wu(23))
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.localSubs).To(HaveLen(1))
			Expect(e.tdSubscribed).To(BeEmpty())
		})

		It("dedups id+subscript pairs by byte key", func() {
			svc.owner[79] = remoteRank
			_, err := e.Rule("a", nil, []cmn.IdSub{idsub(79, "k")}, wu(24))
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Rule("b", nil, []cmn.IdSub{idsub(79, "k")}, wu(25))
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.remoteSubs).To(HaveLen(1))

			// a different subscript of the same datum is a new subscription
			_, err = e.Rule("c", nil, []cmn.IdSub{idsub(79, "k2")}, wu(26))
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.remoteSubs).To(HaveLen(2))
		})
	})

	Describe("finalize", func() {
		It("drops all indices", func() {
			_, err := e.Rule("t", []cmn.DatumID{5}, nil, wu(31))
			Expect(err).NotTo(HaveOccurred())
			e.Fin()
			Expect(e.waiting).To(BeNil())
			Expect(e.tdBlockers).To(BeNil())
		})
	})
})

var _ = Describe("Global handle", func() {
	It("fails before Init and works after", func() {
		_, err := Rule("t", nil, nil, &cmn.WorkUnit{ID: 1})
		Expect(cmn.IsErrUninitialized(err)).To(BeTrue())

		var r cmn.WorkArray
		Expect(cmn.IsErrUninitialized(Close(1, &r))).To(BeTrue())
		Expect(cmn.IsErrUninitialized(SubClose(1, cmn.SubscriptStr("a"), &r))).To(BeTrue())

		Expect(Init(0, newMockSvc(0), nil)).NotTo(HaveOccurred())
		defer Fin()
		Expect(Init(0, newMockSvc(0), nil)).To(HaveOccurred())

		ready, err := Rule("t", nil, nil, &cmn.WorkUnit{ID: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(ready).To(BeTrue())
	})
})
