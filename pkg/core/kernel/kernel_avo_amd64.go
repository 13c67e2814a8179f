//go:build avo && amd64

package kernel

import (
	"log"

	"github.com/klauspost/cpuid/v2"

	"github.com/sanonone/spikegrid/pkg/core"
)

// AdvanceQueueBlockAVX2 advances delay-queue words and cursors eight edges at
// a time using AVX2 variable shifts.
//
//go:generate go run ./gen -stubs ./stubs_avo.go -out ./kernel_avo.s
//func AdvanceQueueBlockAVX2(queue []uint32, idx []int32, qlen int32)

// advanceQueueBlockAVX2 wraps the generated routine. Dead slots are advanced
// too; their queues are empty and their cursors are rewound at creation, so
// the extra work is harmless and keeps the vector body branch-free.
func advanceQueueBlockAVX2(s *core.Synapses, lo, hi int) {
	if hi > lo {
		AdvanceQueueBlockAVX2(s.DelayQueue[lo:hi], s.DelayIdx[lo:hi], int32(s.QueueLength()))
	}
}

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		advanceBlock = advanceQueueBlockAVX2
		advanceBlockName = "AVX2"
		log.Println("SpikeGrid synapse kernel: AVX2 queue advance enabled.")
	}
}
