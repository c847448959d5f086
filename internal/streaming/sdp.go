package streaming

import (
	"github.com/pion/sdp/v3"

	"github.com/smazurov/camstream/internal/ffmpeg"
)

const (
	returnAudioPayloadType = "110"
	returnAudioFmtp        = "profile-level-id=1;mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3; config=F8F0212C00BC00"
)

// BuildReturnAudioSDP describes the viewer's inbound AAC-ELD stream so the
// return-audio transcoder can receive it on the audio return port.
func BuildReturnAudioSDP(target Target) (string, error) {
	addressType := "IP4"
	if target.IPv6 {
		addressType = "IP6"
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    addressType,
			UnicastAddress: target.Address,
		},
		SessionName: "Talk",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType,
			Address:     &sdp.Address{Address: target.Address},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: target.Audio.ReturnPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{returnAudioPayloadType},
				},
				Bandwidth: []sdp.Bandwidth{{Type: "AS", Bandwidth: 24}},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", returnAudioPayloadType+" MPEG4-GENERIC/16000/1"),
					sdp.NewPropertyAttribute("rtcp-mux"),
					sdp.NewAttribute("fmtp", returnAudioPayloadType+" "+returnAudioFmtp),
					sdp.NewAttribute("crypto", "1 "+ffmpeg.SRTPSuite+" inline:"+ffmpeg.SRTPParams(target.Audio.Key, target.Audio.Salt)),
				},
			},
		},
	}

	out, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
