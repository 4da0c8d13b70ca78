//go:build windows

package action

import "golang.org/x/sys/windows"

// sameDevice reports whether a and b live on the same volume, using the
// volume serial number reported by GetFileInformationByHandle.
func sameDevice(a, b string) (bool, error) {
	va, err := volumeSerial(a)
	if err != nil {
		return false, err
	}
	vb, err := volumeSerial(b)
	if err != nil {
		return false, err
	}
	return va == vb, nil
}

func volumeSerial(path string) (uint32, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	h, err := windows.CreateFile(p, 0, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(h)
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return 0, err
	}
	return info.VolumeSerialNumber, nil
}
