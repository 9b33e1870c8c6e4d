// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.mozilla.org/pkcs7"
)

type Certificate struct {
	Revision uint16
	Type     uint16
	Data     []byte
}

// Certificates parses the attribute certificate table. Unlike every other
// data directory, its address is a file offset.
func (img *Image) Certificates() ([]Certificate, error) {
	dir := img.Directory(IMAGE_DIRECTORY_ENTRY_SECURITY)
	if dir.Size == 0 {
		return nil, nil
	}
	end := uint64(dir.VirtualAddress) + uint64(dir.Size)
	if end > uint64(len(img.data)) {
		return nil, fmt.Errorf("%w: certificate table exceeds file", ErrFormat)
	}

	var result []Certificate
	table := img.data[dir.VirtualAddress:end]
	for len(table) >= winCertificateHeaderSize {
		length := binary.LittleEndian.Uint32(table)
		if length < winCertificateHeaderSize || uint64(length) > uint64(len(table)) {
			return nil, fmt.Errorf("%w: certificate entry of %d bytes", ErrFormat, length)
		}
		result = append(result, Certificate{
			Revision: binary.LittleEndian.Uint16(table[4:]),
			Type:     binary.LittleEndian.Uint16(table[6:]),
			Data:     table[winCertificateHeaderSize:length],
		})
		next := (length + 7) &^ 7
		if uint64(next) >= uint64(len(table)) {
			break
		}
		table = table[next:]
	}
	return result, nil
}

func (img *Image) HasCertificate() bool {
	return img.Directory(IMAGE_DIRECTORY_ENTRY_SECURITY).Size != 0
}

// Signer returns the common name of the Authenticode signer, or an empty
// string for unsigned images.
func (img *Image) Signer() (string, error) {
	certs, err := img.Certificates()
	if err != nil {
		return "", err
	}
	for _, c := range certs {
		if c.Type != WIN_CERT_TYPE_PKCS_SIGNED_DATA {
			continue
		}
		p7, err := pkcs7.Parse(c.Data)
		if err != nil {
			return "", fmt.Errorf("parsing signature: %w", err)
		}
		if signer := p7.GetOnlySigner(); signer != nil {
			return signer.Subject.CommonName, nil
		}
		if len(p7.Certificates) > 0 {
			return p7.Certificates[0].Subject.CommonName, nil
		}
		return "", errors.New("signature carries no certificates")
	}
	return "", nil
}

// StripCertificate removes the attribute certificate table. The table is
// truncated from the file when it is the last thing in it; otherwise only
// the directory entry is cleared. Reports whether anything was removed.
func (img *Image) StripCertificate() (bool, error) {
	if !img.HasCertificate() {
		return false, nil
	}
	dir := img.DataDirectory[IMAGE_DIRECTORY_ENTRY_SECURITY]
	end := uint64(dir.VirtualAddress) + uint64(dir.Size)
	if end > uint64(len(img.data)) {
		return false, fmt.Errorf("%w: certificate table exceeds file", ErrFormat)
	}

	tail := true
	for _, b := range img.data[end:] {
		if b != 0 {
			tail = false
			break
		}
	}
	if tail && dir.VirtualAddress >= img.rawEnd() {
		img.data = img.data[:dir.VirtualAddress]
	}

	img.DataDirectory[IMAGE_DIRECTORY_ENTRY_SECURITY] = DataDirectory{}
	return true, img.writeHeaders()
}

// rawEnd is the end of the headers and section data; anything past it is overlay.
func (img *Image) rawEnd() uint32 {
	end := img.SizeOfHeaders
	for _, sec := range img.Sections {
		if sec.SizeOfRawData > 0 && sec.RawEnd() > end {
			end = sec.RawEnd()
		}
	}
	return end
}
