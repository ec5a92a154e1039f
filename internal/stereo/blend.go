package stereo

// screen blends b over a: 255 - (255-a)(255-b)/255. It never darkens.
func screen(a, b uint8) uint8 {
	return 255 - uint8((uint32(255-a)*uint32(255-b)+127)/255)
}

// screenLayer screen-composites a row of star pixels onto dst, shifting the
// star row right by shift pixels. Columns with no star pixel are left as is.
func screenLayer(dst, stars []uint8, w, shift int) {
	for x := 0; x < w; x++ {
		sx := x - shift
		if sx < 0 || sx >= w {
			continue
		}
		d, s := x*4, sx*4
		dst[d+0] = screen(dst[d+0], stars[s+0])
		dst[d+1] = screen(dst[d+1], stars[s+1])
		dst[d+2] = screen(dst[d+2], stars[s+2])
		dst[d+3] = 255
	}
}

// boostRow multiplies every colour channel by k, saturating at 255.
func boostRow(row []uint8, lut *[256]uint8) {
	for i := 0; i < len(row); i += 4 {
		row[i+0] = lut[row[i+0]]
		row[i+1] = lut[row[i+1]]
		row[i+2] = lut[row[i+2]]
	}
}

func boostLUT(k float64) *[256]uint8 {
	var lut [256]uint8
	for i := range lut {
		v := float64(i) * k
		if v >= 255 {
			lut[i] = 255
		} else {
			lut[i] = uint8(v)
		}
	}
	return &lut
}
