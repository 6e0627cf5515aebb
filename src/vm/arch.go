package vm

// WriteSatp executes `csrw satp, a0; sfence.vma`. It is installed by the
// composition root at boot rather than implemented here, since vm has no
// other reason to hold privileged instructions.
var WriteSatp func(satp uint64)

func writeSatpAndFence(satp uint64) {
	if WriteSatp == nil {
		panic("write satp hook not installed")
	}
	WriteSatp(satp)
}
