package bot

import (
	"strconv"
	"strings"

	"cuttlefish/core"
)

// Args are the options picked out of a command line or photo caption. The
// flag words are removed and whatever is left becomes the prompt.
type Args struct {
	Orientation string
	Count       int
	UseMax      bool
	Prompt      string
}

// parseArgs scans the words of a message for option flags:
// --landscape/-l, --portrait/-p, --square/-s set the orientation,
// -n N asks for several images (clamped to 1..10) and --max/-max picks the
// larger model in the photo editing flow. A -n that is not followed by a
// number is left in the prompt as an ordinary word.
func parseArgs(words []string) Args {
	args := Args{Orientation: core.OrientationPortrait, Count: 1}
	rest := make([]string, 0, len(words))

	for i := 0; i < len(words); i++ {
		switch word := strings.ToLower(words[i]); {
		case word == "--landscape" || word == "-l":
			args.Orientation = core.OrientationLandscape
		case word == "--portrait" || word == "-p":
			args.Orientation = core.OrientationPortrait
		case word == "--square" || word == "-s":
			args.Orientation = core.OrientationSquare
		case word == "--max" || word == "-max":
			args.UseMax = true
		case word == "-n" && i+1 < len(words):
			n, err := strconv.Atoi(words[i+1])
			if err != nil {
				rest = append(rest, words[i])
				continue
			}
			if n < 1 {
				n = 1
			}
			if n > core.MaxImages {
				n = core.MaxImages
			}
			args.Count = n
			i++
		default:
			rest = append(rest, words[i])
		}
	}

	args.Prompt = strings.Join(rest, " ")
	return args
}
