package asm

import (
	"strings"
	"testing"
)

// smallProgram is a counted loop.
const smallProgram = `
        MVI B, 10
        MVI A, 0
loop:   ADD B
        DCR B
        JNZ loop
        HLT
`

// mediumProgram prints a string through the CP/M BDOS entry and exercises
// subroutines, EQU and data directives.
const mediumProgram = `
BDOS    EQU 5
        ORG 100h
        JMP main

double: ADD A
        RET

main:   LXI SP, 3000h
        MVI A, 3
        CALL double
        CPI 6
        JNZ fail
        MVI C, 9
        LXI D, okmsg
        CALL BDOS
        HLT

fail:   MVI C, 9
        LXI D, errmsg
        CALL BDOS
        HLT

okmsg:  DB 'OK', 0Dh, 0Ah, '$'
errmsg: DB 'FAIL', 0Dh, 0Ah, '$'
`

// largeProgram repeats the medium body's arithmetic many times.
var largeProgram = func() string {
	var b strings.Builder
	b.WriteString("        ORG 100h\n")
	for i := 0; i < 500; i++ {
		b.WriteString("        MVI A, 12h\n        ADI 34h\n        DAA\n        STA 2000h\n")
	}
	b.WriteString("        HLT\n")
	return b.String()
}()

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(smallProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Medium(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(mediumProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := Assemble(largeProgram); err != nil {
			b.Fatal(err)
		}
	}
}
