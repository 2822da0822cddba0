package cpu

// Peripheral is the port bus seen by the IN and OUT instructions. The core
// gives ports no meaning of its own.
type Peripheral interface {
	In(port byte) byte
	Out(port byte, value byte)
}

// StatefulPeripheral is a Peripheral whose state is carried in snapshots.
type StatefulPeripheral interface {
	Peripheral
	SaveState() []byte
	LoadState(data []byte) error
}
