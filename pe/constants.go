// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

const (
	IMAGE_DOS_SIGNATURE = 0x5A4D // MZ
	IMAGE_NT_SIGNATURE  = 0x00004550

	IMAGE_DOS_HEADER_SIZE     = 64
	IMAGE_FILE_HEADER_SIZE    = 20
	IMAGE_SECTION_HEADER_SIZE = 40
	IMAGE_DATA_DIRECTORY_SIZE = 8

	// Offset of e_lfanew inside the DOS header.
	dosLfanewOffset = 0x3C
)

type OptionalHeaderMagic uint16

const (
	IMAGE_NT_OPTIONAL_HDR32_MAGIC OptionalHeaderMagic = 0x10B
	IMAGE_NT_OPTIONAL_HDR64_MAGIC OptionalHeaderMagic = 0x20B
)

type MachineType uint16

const (
	IMAGE_FILE_MACHINE_UNKNOWN MachineType = 0x0000
	IMAGE_FILE_MACHINE_I386    MachineType = 0x014C
	IMAGE_FILE_MACHINE_ARM     MachineType = 0x01C0
	IMAGE_FILE_MACHINE_THUMB   MachineType = 0x01C2
	IMAGE_FILE_MACHINE_ARMNT   MachineType = 0x01C4
	IMAGE_FILE_MACHINE_IA64    MachineType = 0x0200
	IMAGE_FILE_MACHINE_AMD64   MachineType = 0x8664
	IMAGE_FILE_MACHINE_ARM64   MachineType = 0xAA64
)

func (m MachineType) String() string {
	switch m {
	case IMAGE_FILE_MACHINE_I386:
		return "i386"
	case IMAGE_FILE_MACHINE_ARM:
		return "arm"
	case IMAGE_FILE_MACHINE_THUMB:
		return "thumb"
	case IMAGE_FILE_MACHINE_ARMNT:
		return "armnt"
	case IMAGE_FILE_MACHINE_IA64:
		return "ia64"
	case IMAGE_FILE_MACHINE_AMD64:
		return "amd64"
	case IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	}
	return "unknown"
}

// Resource editing is supported on the machines Windows can still load.
func (m MachineType) Supported() bool {
	switch m {
	case IMAGE_FILE_MACHINE_I386, IMAGE_FILE_MACHINE_ARM, IMAGE_FILE_MACHINE_THUMB,
		IMAGE_FILE_MACHINE_ARMNT, IMAGE_FILE_MACHINE_AMD64, IMAGE_FILE_MACHINE_ARM64:
		return true
	}
	return false
}

// File header characteristics
const (
	IMAGE_FILE_EXECUTABLE_IMAGE = 0x0002
	IMAGE_FILE_DLL              = 0x2000
)

type Subsystem uint16

const (
	IMAGE_SUBSYSTEM_UNKNOWN                 Subsystem = 0
	IMAGE_SUBSYSTEM_NATIVE                  Subsystem = 1
	IMAGE_SUBSYSTEM_WINDOWS_GUI             Subsystem = 2
	IMAGE_SUBSYSTEM_WINDOWS_CUI             Subsystem = 3
	IMAGE_SUBSYSTEM_EFI_APPLICATION         Subsystem = 10
	IMAGE_SUBSYSTEM_EFI_BOOT_SERVICE_DRIVER Subsystem = 11
	IMAGE_SUBSYSTEM_EFI_RUNTIME_DRIVER      Subsystem = 12
	IMAGE_SUBSYSTEM_EFI_ROM                 Subsystem = 13
)

func (s Subsystem) IsEFI() bool {
	return s >= IMAGE_SUBSYSTEM_EFI_APPLICATION && s <= IMAGE_SUBSYSTEM_EFI_ROM
}

// Data directory indices
const (
	IMAGE_DIRECTORY_ENTRY_EXPORT         = 0
	IMAGE_DIRECTORY_ENTRY_IMPORT         = 1
	IMAGE_DIRECTORY_ENTRY_RESOURCE       = 2
	IMAGE_DIRECTORY_ENTRY_EXCEPTION      = 3
	IMAGE_DIRECTORY_ENTRY_SECURITY       = 4
	IMAGE_DIRECTORY_ENTRY_BASERELOC      = 5
	IMAGE_DIRECTORY_ENTRY_DEBUG          = 6
	IMAGE_DIRECTORY_ENTRY_ARCHITECTURE   = 7
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR      = 8
	IMAGE_DIRECTORY_ENTRY_TLS            = 9
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG    = 10
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT   = 11
	IMAGE_DIRECTORY_ENTRY_IAT            = 12
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT   = 13
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR = 14

	IMAGE_NUMBEROF_DIRECTORY_ENTRIES = 16
)

// Section header flags
type SectionFlag uint32

const (
	IMAGE_SCN_CNT_CODE               SectionFlag = 0x00000020
	IMAGE_SCN_CNT_INITIALIZED_DATA   SectionFlag = 0x00000040
	IMAGE_SCN_CNT_UNINITIALIZED_DATA SectionFlag = 0x00000080
	IMAGE_SCN_MEM_DISCARDABLE        SectionFlag = 0x02000000
	IMAGE_SCN_MEM_SHARED             SectionFlag = 0x10000000
	IMAGE_SCN_MEM_EXECUTE            SectionFlag = 0x20000000
	IMAGE_SCN_MEM_READ               SectionFlag = 0x40000000
	IMAGE_SCN_MEM_WRITE              SectionFlag = 0x80000000
)

func (f SectionFlag) HasDataInFile() bool {
	return f&IMAGE_SCN_CNT_UNINITIALIZED_DATA == 0
}

const (
	WIN_CERT_REVISION_2_0          = 0x0200
	WIN_CERT_TYPE_PKCS_SIGNED_DATA = 0x0002

	winCertificateHeaderSize = 8
)
